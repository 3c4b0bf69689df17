// Package discovery announces mock controllers over mDNS/DNS-SD so host
// software can find them without a configured address.
//
// # Service (_apt-mock._tcp)
//
// Each mock with a TCP endpoint registers one instance named
// <model>-<serial>, e.g. TDC001-83000001, on the port hosts connect to.
// TXT records:
//   - sn: serial number, 8 decimal digits
//   - model: model string from HW_GET_INFO
//   - ch: channel count
//   - fw: firmware version (optional)
package discovery
