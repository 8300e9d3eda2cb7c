// Package hal defines the device-side USB bus contract.
//
// The [Bus] interface is the boundary between a USB device/class stack and
// the driver of a device controller. The stack allocates endpoints during
// enumeration, submits and retrieves packets with Write and Read, and calls
// Poll from its main loop or from the controller's interrupt handler to learn
// which endpoints need attention.
//
// # Design Principles
//
// The contract is designed to be:
//
//   - Non-blocking: no operation waits; [pkg.ErrWouldBlock] tells the caller
//     to retry after the next Poll
//   - Packet oriented: Write and Read move one packet each
//   - Copying: data crosses the boundary by copy, so controller buffers are
//     never aliased by the stack
//
// # Interface Overview
//
//   - Endpoint allocation: [Bus.AllocEP]
//   - Lifecycle: [Bus.Enable], [Bus.Reset], [Bus.Suspend], [Bus.Resume]
//   - Addressing: [Bus.SetDeviceAddress]
//   - Data: [Bus.Write], [Bus.Read]
//   - Halt: [Bus.SetStalled], [Bus.IsStalled]
//   - Events: [Bus.Poll] returning a [PollResult]
//
// # Requests and Descriptors
//
// [SetupPacket] decodes the 8-byte SETUP payload read from endpoint 0.
// [DeviceDescriptor] and [Configuration] encode the standard descriptors a
// device returns for GET_DESCRIPTOR.
//
// # Example
//
//	for {
//	    switch r := bus.Poll(); r.Kind {
//	    case hal.PollReset:
//	        bus.Reset()
//	    case hal.PollData:
//	        if r.EPSetup&1 != 0 {
//	            n, err := bus.Read(hal.NewEndpointAddress(0, hal.Out), buf[:])
//	            // ...
//	        }
//	    }
//	}
//
// The PIC32 implementation is in
// [github.com/ardnew/pic32usb/device/hal/pic32].
package hal
