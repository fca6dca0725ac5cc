package ble

import (
	"strings"

	"tinygo.org/x/bluetooth"

	"github.com/nerrad567/switchsentry/internal/automation"
)

// switchBotServiceDataUUID is the 16-bit GATT service UUID SwitchBot
// devices advertise their state under.
var switchBotServiceDataUUID = bluetooth.New16BitUUID(0xfd3d)

// Model characters identify the decoded advertisement's device family,
// taken from the first byte of the SwitchBot service-data payload.
const (
	modelMeter    = 'T' // WoSensorTH: temperature/humidity meter
	modelContact  = 'd' // WoContact: door/window contact sensor with PIR
	modelBot      = 'H' // WoHand: the Bot switch-press actuator
	modelCurtain  = 'c' // WoCurtain: motorized curtain
	modelPresence = 'p' // WoPresence: PIR motion sensor
	modelRemote   = 'r' // WoRemote-family buttons with a press counter
	modelLight    = 'u' // WoBulb/WoStrip: light devices
)

func modelName(model byte) string {
	switch model {
	case modelMeter:
		return "WoSensorTH"
	case modelContact:
		return "WoContact"
	case modelBot:
		return "WoHand"
	case modelCurtain:
		return "WoCurtain"
	case modelPresence:
		return "WoPresence"
	case modelRemote:
		return "WoRemote"
	case modelLight:
		return "WoBulb"
	default:
		return "unknown"
	}
}

// decodeServiceData extracts the model-specific attribute set spec.md §3
// documents for BLE events from a SwitchBot service-data payload. Byte 0
// is the model character, byte 1 carries battery percentage in its low 7
// bits, and bytes 2+ are decoded per model family.
func decodeServiceData(data []byte) map[string]any {
	attrs := map[string]any{}
	if len(data) < 2 {
		return attrs
	}

	model := data[0]
	attrs["modelName"] = modelName(model)
	attrs["battery"] = int64(data[1] & 0x7f)

	switch model {
	case modelMeter:
		if len(data) >= 5 {
			sign := 1.0
			if data[3]&0x80 == 0 {
				sign = -1.0
			}
			whole := float64(data[3] & 0x7f)
			decimal := float64(data[2] & 0x0f)
			attrs["temperature"] = sign * (whole + decimal/10)
			attrs["humidity"] = int64(data[4] & 0x7f)
		}
	case modelContact:
		if len(data) >= 3 {
			attrs["contact_open"] = data[2]&0x01 != 0
			attrs["motion_detected"] = data[2]&0x02 != 0
		}
	case modelBot:
		if len(data) >= 3 {
			attrs["isOn"] = data[2]&0x40 != 0
		}
	case modelCurtain:
		if len(data) >= 4 {
			attrs["position"] = int64(data[3] & 0x7f)
			attrs["in_motion"] = data[3]&0x80 != 0
		}
	case modelPresence:
		if len(data) >= 3 {
			attrs["motion_detected"] = data[2]&0x01 != 0
		}
	case modelRemote:
		if len(data) >= 3 {
			attrs["button_count"] = int64(data[2])
		}
	case modelLight:
		if len(data) >= 3 {
			attrs["is_light"] = true
			attrs["isOn"] = data[2]&0x01 != 0
		}
	}

	return attrs
}

// toRawEvent flattens a scan result into the entity-keyed attribute bag
// spec.md §3 describes: address, rssi, and name are always present;
// model-specific attributes are added when the advertisement carries
// SwitchBot service data.
func toRawEvent(result bluetooth.ScanResult) automation.RawEvent {
	address := result.Address.String()
	attrs := map[string]any{
		"address": address,
		"rssi":    int64(result.RSSI),
		"name":    strings.TrimSpace(result.LocalName()),
	}

	for _, sd := range result.ServiceData() {
		if sd.UUID != switchBotServiceDataUUID {
			continue
		}
		for k, v := range decodeServiceData(sd.Data) {
			attrs[k] = v
		}
		break
	}

	return automation.RawEvent{
		Key:        address,
		Kind:       automation.KindBLE,
		Attributes: attrs,
	}
}
