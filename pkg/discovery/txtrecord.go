package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for a mock.
func EncodeTXT(info *DeviceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeySerial:   formatSerial(info.Serial),
		TXTKeyModel:    info.Model,
		TXTKeyChannels: strconv.Itoa(info.Channels),
	}
	if info.Firmware != "" {
		txt[TXTKeyFirmware] = info.Firmware
	}
	return txt
}

// DecodeTXT parses the TXT records of a mock. Port is left zero.
func DecodeTXT(txt TXTRecordMap) (*DeviceInfo, error) {
	info := &DeviceInfo{}

	sn, ok := txt[TXTKeySerial]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeySerial)
	}
	n, err := strconv.ParseUint(sn, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, TXTKeySerial, sn)
	}
	info.Serial = uint32(n)

	info.Model, ok = txt[TXTKeyModel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyModel)
	}

	ch, ok := txt[TXTKeyChannels]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyChannels)
	}
	info.Channels, err = strconv.Atoi(ch)
	if err != nil || info.Channels < 1 {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, TXTKeyChannels, ch)
	}

	// Optional fields
	info.Firmware = txt[TXTKeyFirmware]

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// formatSerial zero-pads to the 8 digits printed on real controllers.
func formatSerial(serial uint32) string {
	return fmt.Sprintf("%08d", serial)
}
