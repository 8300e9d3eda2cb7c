package usbid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultPaths lists the standard locations of the database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// ErrNotFound indicates none of the searched paths holds a database.
var ErrNotFound = errors.New("usb.ids not found")

// Database maps vendor and product IDs to names. It is immutable once
// parsed and safe for concurrent use.
type Database struct {
	vendors  map[uint16]string
	products map[uint32]string // VID<<16 | PID
}

// Open parses the first readable file among paths, or [DefaultPaths] if
// none are given.
func Open(paths ...string) (*Database, error) {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		db, err := Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("usbid: %s: %w", path, err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("usbid: %w in %s", ErrNotFound, strings.Join(paths, ", "))
}

// Parse reads a database in usb.ids format. Lines it does not understand
// are skipped; only read errors are returned.
func Parse(r io.Reader) (*Database, error) {
	db := &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
	}
	var (
		vid     uint16
		inScope bool // product lines belong to vid
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if line[0] == '\t' {
			if !inScope {
				continue
			}
			if id, name, ok := entry(line[1:]); ok {
				db.products[uint32(vid)<<16|uint32(id)] = name
			}
			continue
		}
		// Class, language and HID tables follow the vendors with
		// non-hex leaders.
		id, name, ok := entry(line)
		inScope = ok
		if ok {
			vid = id
			db.vendors[vid] = name
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return db, nil
}

// entry splits "xxxx  Name".
func entry(line string) (uint16, string, bool) {
	if len(line) < 6 || line[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimLeft(line[5:], " ")
	if name == "" {
		return 0, "", false
	}
	return uint16(id), name, true
}

// Vendor returns the vendor name, or "" if unknown.
func (db *Database) Vendor(vid uint16) string {
	if db == nil {
		return ""
	}
	return db.vendors[vid]
}

// Product returns the product name, or "" if unknown.
func (db *Database) Product(vid, pid uint16) string {
	if db == nil {
		return ""
	}
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Describe formats an ID pair the way lsusb does, followed by whatever
// names are known.
func (db *Database) Describe(vid, pid uint16) string {
	s := fmt.Sprintf("%04x:%04x", vid, pid)
	for _, name := range []string{db.Vendor(vid), db.Product(vid, pid)} {
		if name != "" {
			s += " " + name
		}
	}
	return s
}

// Len returns the number of vendors and products known.
func (db *Database) Len() (vendors, products int) {
	if db == nil {
		return 0, 0
	}
	return len(db.vendors), len(db.products)
}
