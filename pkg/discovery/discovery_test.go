package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTXTRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		info DeviceInfo
	}{
		{"single channel", DeviceInfo{Serial: 83000001, Model: "TDC001", Firmware: "2.1.4", Channels: 1}},
		{"short serial", DeviceInfo{Serial: 42, Model: "KDC101", Channels: 1}},
		{"multi channel", DeviceInfo{Serial: 27000123, Model: "BBD203", Firmware: "1.0.0", Channels: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strs := TXTRecordsToStrings(EncodeTXT(&tt.info))
			got, err := DecodeTXT(StringsToTXTRecords(strs))
			if err != nil {
				t.Fatalf("DecodeTXT: %v", err)
			}
			if *got != tt.info {
				t.Errorf("got %+v, want %+v", *got, tt.info)
			}
		})
	}
}

func TestEncodeTXTSerialPadded(t *testing.T) {
	txt := EncodeTXT(&DeviceInfo{Serial: 42, Model: "TDC001", Channels: 1})
	if txt[TXTKeySerial] != "00000042" {
		t.Errorf("sn = %q, want 00000042", txt[TXTKeySerial])
	}
	if _, ok := txt[TXTKeyFirmware]; ok {
		t.Error("empty firmware should be omitted")
	}
}

func TestTXTRecordsToStringsSorted(t *testing.T) {
	strs := TXTRecordsToStrings(TXTRecordMap{"sn": "1", "ch": "2", "model": "X"})
	want := []string{"ch=2", "model=X", "sn=1"}
	if strings.Join(strs, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", strs, want)
	}
}

func TestDecodeTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"missing serial", TXTRecordMap{"model": "X", "ch": "1"}, ErrMissingRequired},
		{"bad serial", TXTRecordMap{"sn": "abc", "model": "X", "ch": "1"}, ErrInvalidTXT},
		{"missing model", TXTRecordMap{"sn": "1", "ch": "1"}, ErrMissingRequired},
		{"missing channels", TXTRecordMap{"sn": "1", "model": "X"}, ErrMissingRequired},
		{"zero channels", TXTRecordMap{"sn": "1", "model": "X", "ch": "0"}, ErrInvalidTXT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTXT(tt.txt)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "flag", "b=x=y", ""})
	if txt["a"] != "1" || txt["b"] != "x=y" {
		t.Errorf("got %v", txt)
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("flag = %q, %v", v, ok)
	}
	if len(txt) != 3 {
		t.Errorf("len = %d, want 3", len(txt))
	}
}

func TestInstanceName(t *testing.T) {
	info := DeviceInfo{Serial: 83000001, Model: "TDC001"}
	if got := info.InstanceName(); got != "TDC001-83000001" {
		t.Errorf("InstanceName = %q", got)
	}

	anon := DeviceInfo{Serial: 7}
	if got := anon.InstanceName(); got != "APT-00000007" {
		t.Errorf("InstanceName = %q", got)
	}

	if err := ValidateInstanceName(""); !errors.Is(err, ErrInstanceNameTooLong) {
		t.Errorf("empty name: %v", err)
	}
	if err := ValidateInstanceName(strings.Repeat("x", MaxInstanceNameLen+1)); !errors.Is(err, ErrInstanceNameTooLong) {
		t.Errorf("long name: %v", err)
	}
}

func TestAggregatorMergesAddresses(t *testing.T) {
	agg := newAggregator()

	first := &Service{InstanceName: "TDC001-83000001", Addresses: []string{"10.0.0.5"}}
	if !agg.add(first) {
		t.Fatal("first sighting should be new")
	}
	if agg.add(&Service{InstanceName: "TDC001-83000001", Addresses: []string{"10.0.0.5", "fe80::1"}}) {
		t.Fatal("second sighting should merge")
	}
	if got := strings.Join(first.Addresses, ","); got != "10.0.0.5,fe80::1" {
		t.Errorf("addresses = %s", got)
	}

	agg.remove("TDC001-83000001", []string{"10.0.0.5"})
	if got := strings.Join(first.Addresses, ","); got != "fe80::1" {
		t.Errorf("addresses after removal = %s", got)
	}
	agg.remove("TDC001-83000001", []string{"fe80::1"})
	if len(agg.services) != 0 {
		t.Error("service with no addresses should be dropped")
	}
	agg.remove("unknown", nil)
}

func TestAdvertiseRejectsMissingPort(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	err := a.Advertise(context.Background(), &DeviceInfo{Serial: 1, Model: "TDC001", Channels: 1})
	if err == nil {
		t.Fatal("expected error for port 0")
	}
	if err := a.Stop(); err != nil {
		t.Errorf("Stop without Advertise: %v", err)
	}
}

func TestNewMDNSBrowserDefaults(t *testing.T) {
	b := NewMDNSBrowser(BrowserConfig{})
	if b.config.BrowseTimeout != BrowseTimeout {
		t.Errorf("BrowseTimeout = %v, want %v", b.config.BrowseTimeout, BrowseTimeout)
	}
	if DefaultBrowserConfig().BrowseTimeout != 3*time.Second {
		t.Error("unexpected default browse timeout")
	}
}
