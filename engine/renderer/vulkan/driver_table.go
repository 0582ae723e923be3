package vulkan

/** @brief PCI vendor identifiers for devices with known Vulkan drivers. */
const (
	VENDOR_ID_AMD       uint32 = 0x1002
	VENDOR_ID_IMGTEC    uint32 = 0x1010
	VENDOR_ID_APPLE     uint32 = 0x106B
	VENDOR_ID_NVIDIA    uint32 = 0x10DE
	VENDOR_ID_ARM       uint32 = 0x13B5
	VENDOR_ID_MICROSOFT uint32 = 0x1414
	VENDOR_ID_SAMSUNG   uint32 = 0x144D
	VENDOR_ID_BROADCOM  uint32 = 0x14E4
	VENDOR_ID_VMWARE    uint32 = 0x15AD
	VENDOR_ID_GOOGLE    uint32 = 0x1AE0
	VENDOR_ID_VIRTIO    uint32 = 0x1AF4
	VENDOR_ID_QUALCOMM  uint32 = 0x5143
	VENDOR_ID_INTEL     uint32 = 0x8086
	/** @brief Khronos-assigned software vendor id used by Mesa's CPU rasterizer. */
	VENDOR_ID_MESA_SW uint32 = 0x10005
)

/**
 * @brief One record of the vendor/device to driver-name map. Records are
 * matched in table order; the first hit wins. A record matches when the
 * vendor id is equal and, if present, the chip list or predicate accepts
 * the device id. A record with neither chip list nor predicate matches
 * the whole vendor.
 */
type vulkanDriverEntry struct {
	VendorID   uint32
	DriverName string
	/** @brief Explicit device ids handled by this driver, nil for all. */
	ChipIDs []uint32
	/** @brief Device-id predicate for vendors hosting several drivers. */
	Predicate func(deviceID uint32) bool
}

/* Pre-gen9 integrated parts are served by the legacy Intel driver. The
 * high byte of the device id tracks the hardware generation. */
func intelLegacyDevice(deviceID uint32) bool {
	switch deviceID >> 8 {
	case 0x01, 0x04, 0x0A, 0x0C, 0x0D, 0x0F, 0x16, 0x22:
		return true
	}
	return false
}

var vulkanDriverMap = []vulkanDriverEntry{
	{VendorID: VENDOR_ID_INTEL, DriverName: "hasvk", Predicate: intelLegacyDevice},
	{VendorID: VENDOR_ID_INTEL, DriverName: "anv"},
	{VendorID: VENDOR_ID_AMD, DriverName: "radv"},
	{VendorID: VENDOR_ID_NVIDIA, DriverName: "nvidia"},
	{VendorID: VENDOR_ID_QUALCOMM, DriverName: "turnip"},
	{VendorID: VENDOR_ID_ARM, DriverName: "panvk"},
	{VendorID: VENDOR_ID_BROADCOM, DriverName: "v3dv"},
	{VendorID: VENDOR_ID_IMGTEC, DriverName: "powervr"},
	{VendorID: VENDOR_ID_SAMSUNG, DriverName: "xclipse"},
	{VendorID: VENDOR_ID_APPLE, DriverName: "moltenvk"},
	{VendorID: VENDOR_ID_MICROSOFT, DriverName: "dozen"},
	{VendorID: VENDOR_ID_VMWARE, DriverName: "svga"},
	{VendorID: VENDOR_ID_VIRTIO, DriverName: "venus"},
	{VendorID: VENDOR_ID_GOOGLE, DriverName: "swiftshader", ChipIDs: []uint32{0xC0DE}},
	{VendorID: VENDOR_ID_MESA_SW, DriverName: "lavapipe"},
}

/**
 * @brief Resolves the driver name for a physical device from its PCI ids.
 * Consulted once at device selection. Returns an empty string when the
 * device is not in the map.
 */
func identifyDriver(vendorID, deviceID uint32) string {
	for i := range vulkanDriverMap {
		entry := &vulkanDriverMap[i]
		if entry.VendorID != vendorID {
			continue
		}
		if len(entry.ChipIDs) > 0 {
			for _, chip := range entry.ChipIDs {
				if chip == deviceID {
					return entry.DriverName
				}
			}
			continue
		}
		if entry.Predicate != nil && !entry.Predicate(deviceID) {
			continue
		}
		return entry.DriverName
	}
	return ""
}

/* Drivers whose push-descriptor implementations are broken or missing get
 * the emulated pool even when the extension is advertised. */
var pushDescriptorDenylist = map[string]bool{
	"venus": true,
	"svga":  true,
}

/** @brief Reports whether the hardware push-descriptor path may be used on the named driver. */
func driverAllowsPushDescriptors(driverName string) bool {
	return !pushDescriptorDenylist[driverName]
}
