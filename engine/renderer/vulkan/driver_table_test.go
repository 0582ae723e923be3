package vulkan

import "testing"

func TestIdentifyDriver(t *testing.T) {
	for _, tc := range []struct {
		name     string
		vendorID uint32
		deviceID uint32
		want     string
	}{
		{"amd", VENDOR_ID_AMD, 0x73FF, "radv"},
		{"nvidia", VENDOR_ID_NVIDIA, 0x2484, "nvidia"},
		{"intel modern", VENDOR_ID_INTEL, 0x9A49, "anv"},
		{"intel haswell", VENDOR_ID_INTEL, 0x0416, "hasvk"},
		{"intel broadwell", VENDOR_ID_INTEL, 0x1616, "hasvk"},
		{"intel cherryview", VENDOR_ID_INTEL, 0x22B1, "hasvk"},
		{"qualcomm", VENDOR_ID_QUALCOMM, 0x6030001, "turnip"},
		{"software rasterizer", VENDOR_ID_MESA_SW, 0x0, "lavapipe"},
		{"swiftshader chip", VENDOR_ID_GOOGLE, 0xC0DE, "swiftshader"},
		{"google unknown chip", VENDOR_ID_GOOGLE, 0xBEEF, ""},
		{"unknown vendor", 0xFFFF, 0x1234, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if have := identifyDriver(tc.vendorID, tc.deviceID); have != tc.want {
				t.Fatalf("identifyDriver(%#x, %#x): have %q, want %q", tc.vendorID, tc.deviceID, have, tc.want)
			}
		})
	}
}

func TestPushDescriptorDenylist(t *testing.T) {
	if driverAllowsPushDescriptors("venus") {
		t.Fatalf("venus must not use hardware push descriptors")
	}
	if driverAllowsPushDescriptors("svga") {
		t.Fatalf("svga must not use hardware push descriptors")
	}
	if !driverAllowsPushDescriptors("radv") {
		t.Fatalf("radv should use hardware push descriptors")
	}
	if !driverAllowsPushDescriptors("") {
		t.Fatalf("unknown drivers default to allowing the extension")
	}
}
