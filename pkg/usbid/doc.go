// Package usbid names USB vendors and products from a usb.ids database.
//
// The database is the text file distributed by the linux-usb project and
// installed by most Linux distributions. [Open] tries [DefaultPaths] in
// order; [Parse] reads any other source:
//
//	db, err := usbid.Open()
//	if err != nil {
//		// no database installed; names stay empty
//	}
//	fmt.Println(db.Describe(0x04d8, 0x000a))
//
// A nil *Database is valid and knows no names.
package usbid
