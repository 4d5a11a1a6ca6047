package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReadings_MokoBatchFormat(t *testing.T) {
	now := time.Now()
	payload := []byte(`{
		"msg_id": "12345",
		"device_info": {
			"mac": "00E04C006BF1",
			"timestamp": 1699999999
		},
		"beacons": [
			{"type": "iBeacon", "mac": "AABBCCDDEEFF", "rssi": -65, "tx_power": -59},
			{"type": "iBeacon", "mac": "AABBCCDDEE00", "rssi": -72, "tx_power": -59}
		]
	}`)

	readings, err := parseReadings("/cfs1/00E04C006BF1/send", payload, now)
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, "00E04C006BF1", readings[0].GatewayMac)
	assert.Equal(t, "AABBCCDDEEFF", readings[0].BeaconMac)
	assert.Equal(t, -65.0, readings[0].RSSI)
	assert.Equal(t, time.Unix(1699999999, 0), readings[0].ObservedAt)

	assert.Equal(t, "AABBCCDDEE00", readings[1].BeaconMac)
	assert.Equal(t, -72.0, readings[1].RSSI)
}

func TestParseReadings_BatchDataField(t *testing.T) {
	now := time.Now()
	// 部分固件用data字段代替beacons
	payload := []byte(`{
		"device_info": {"mac": "00E04C006BF1"},
		"data": [{"mac": "AABBCCDDEEFF", "rssi": -70}]
	}`)

	readings, err := parseReadings("/cfs1/00E04C006BF1/send", payload, now)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, -70.0, readings[0].RSSI)
	// 时间戳缺失：取接收时刻
	assert.Equal(t, now, readings[0].ObservedAt)
}

func TestParseReadings_MillisecondTimestamp(t *testing.T) {
	now := time.Now()
	payload := []byte(`{
		"device_info": {"mac": "00E04C006BF1", "timestamp": 1699999999000},
		"beacons": [{"mac": "AABBCCDDEEFF", "rssi": -65}]
	}`)

	readings, err := parseReadings("/cfs1/00E04C006BF1/send", payload, now)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1699999999000), readings[0].ObservedAt)
}

func TestParseReadings_GatewayMacFromTopic(t *testing.T) {
	now := time.Now()
	// 报文缺网关MAC：从主题路径恢复
	payload := []byte(`{
		"device_info": {"mac": ""},
		"beacons": [{"mac": "AABBCCDDEEFF", "rssi": -65}]
	}`)

	readings, err := parseReadings("/cfs2/00e04c006bf1/send", payload, now)
	require.NoError(t, err)
	assert.Equal(t, "00E04C006BF1", readings[0].GatewayMac)
}

func TestParseReadings_FlatFormat(t *testing.T) {
	now := time.Now()
	payload := []byte(`{
		"gatewayMac": "AA:BB:CC:DD:EE:FF",
		"mac": "11:22:33:44:55:66",
		"rssi": -65,
		"txPower": -59,
		"timestamp": 1699999999
	}`)

	readings, err := parseReadings("ble/gateway/room1", payload, now)
	require.NoError(t, err)
	require.Len(t, readings, 1)

	// MAC归一化：去冒号、大写
	assert.Equal(t, "AABBCCDDEEFF", readings[0].GatewayMac)
	assert.Equal(t, "112233445566", readings[0].BeaconMac)
	assert.Equal(t, -65.0, readings[0].RSSI)
}

func TestParseReadings_FlatAlternateFieldNames(t *testing.T) {
	now := time.Now()
	payload := []byte(`{
		"gateway_mac": "AABBCCDDEEFF",
		"bleMAC": "112233445566",
		"RSSI": -80,
		"time": 1699999999
	}`)

	readings, err := parseReadings("ble/gateway/room1", payload, now)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "112233445566", readings[0].BeaconMac)
	assert.Equal(t, -80.0, readings[0].RSSI)
	assert.Equal(t, time.Unix(1699999999, 0), readings[0].ObservedAt)
}

func TestParseReadings_InvalidJSON(t *testing.T) {
	_, err := parseReadings("/cfs1/00E04C006BF1/send", []byte(`not-json`), time.Now())
	assert.Error(t, err)
}

func TestParseReadings_NoBeaconMac(t *testing.T) {
	payload := []byte(`{"gatewayMac": "AABBCCDDEEFF", "rssi": -65}`)
	_, err := parseReadings("ble/gateway/room1", payload, time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "beacon mac missing")
}

func TestParseReadings_EmptyBeaconList(t *testing.T) {
	payload := []byte(`{
		"device_info": {"mac": "00E04C006BF1"},
		"beacons": []
	}`)
	_, err := parseReadings("/cfs1/00E04C006BF1/send", payload, time.Now())
	assert.Error(t, err)
}

func TestParseReadings_SkipsEntriesWithoutMac(t *testing.T) {
	payload := []byte(`{
		"device_info": {"mac": "00E04C006BF1"},
		"beacons": [
			{"rssi": -65},
			{"mac": "AABBCCDDEEFF", "rssi": -70}
		]
	}`)

	readings, err := parseReadings("/cfs1/00E04C006BF1/send", payload, time.Now())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "AABBCCDDEEFF", readings[0].BeaconMac)
}

func TestParseReadings_MissingRSSIDefaults(t *testing.T) {
	payload := []byte(`{
		"device_info": {"mac": "00E04C006BF1"},
		"beacons": [{"mac": "AABBCCDDEEFF"}]
	}`)

	readings, err := parseReadings("/cfs1/00E04C006BF1/send", payload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, -100.0, readings[0].RSSI)
}

func TestGatewayMacFromTopic(t *testing.T) {
	assert.Equal(t, "00E04C006BF1", gatewayMacFromTopic("/cfs1/00E04C006BF1/send"))
	assert.Equal(t, "00E04C006BF1", gatewayMacFromTopic("/cfs2/00e04c006bf1/send"))
	assert.Equal(t, "", gatewayMacFromTopic("ble/gateway/room1"))
	assert.Equal(t, "", gatewayMacFromTopic("/cfs1/not-a-mac/send"))
}
