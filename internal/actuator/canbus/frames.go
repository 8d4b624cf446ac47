package canbus

import (
	"encoding/binary"
	"math"

	"go.einride.tech/can"
)

// Frame IDs are function code + node ID, little-endian payloads throughout.
// Values travel as scaled integers with a fixed factor, matching the motor
// controller firmware's signal table.
const (
	funcDuty     uint32 = 0x100 // int16 duty, factor 1/32767
	funcVelocity uint32 = 0x200 // int32 mm/s
	funcGains    uint32 = 0x300 // uint16 p,i,d,ff, factor 1e-6
	funcProfile  uint32 = 0x400 // uint16 0.1A limit, uint16 ms ramp, u8 idle
	funcFollow   uint32 = 0x500 // uint32 leader node ID
	funcZero     uint32 = 0x600 // no payload, zeroes the encoder
	funcStatus   uint32 = 0x700 // int32 0.01 rotations, int16 RPM, int16 0.1A
)

const dutyScale = 32767.0

func clampInt(v float64, min, max int64) int64 {
	r := int64(math.Round(v))
	if r < min {
		return min
	}
	if r > max {
		return max
	}
	return r
}

// dutyFrame encodes an open-loop duty command for one controller.
func dutyFrame(nodeID uint32, duty float64) can.Frame {
	var f can.Frame
	f.ID = funcDuty + nodeID
	f.Length = 2
	raw := clampInt(duty*dutyScale, math.MinInt16, math.MaxInt16)
	binary.LittleEndian.PutUint16(f.Data[0:2], uint16(int16(raw)))
	return f
}

// velocityFrame encodes a wheel-speed setpoint in m/s as mm/s.
func velocityFrame(nodeID uint32, metersPerSecond float64) can.Frame {
	var f can.Frame
	f.ID = funcVelocity + nodeID
	f.Length = 4
	raw := clampInt(metersPerSecond*1000.0, math.MinInt32, math.MaxInt32)
	binary.LittleEndian.PutUint32(f.Data[0:4], uint32(int32(raw)))
	return f
}

// gainsFrame encodes the onboard velocity loop gains, factor 1e-6 each.
func gainsFrame(nodeID uint32, p, i, d, ff float64) can.Frame {
	var f can.Frame
	f.ID = funcGains + nodeID
	f.Length = 8
	binary.LittleEndian.PutUint16(f.Data[0:2], uint16(clampInt(p*1e6, 0, math.MaxUint16)))
	binary.LittleEndian.PutUint16(f.Data[2:4], uint16(clampInt(i*1e6, 0, math.MaxUint16)))
	binary.LittleEndian.PutUint16(f.Data[4:6], uint16(clampInt(d*1e6, 0, math.MaxUint16)))
	binary.LittleEndian.PutUint16(f.Data[6:8], uint16(clampInt(ff*1e6, 0, math.MaxUint16)))
	return f
}

// profileFrame encodes current limit (0.1 A), ramp rate (ms) and idle mode.
func profileFrame(nodeID uint32, currentLimitAmps, rampRateSeconds float64, idleBrake bool) can.Frame {
	var f can.Frame
	f.ID = funcProfile + nodeID
	f.Length = 5
	binary.LittleEndian.PutUint16(f.Data[0:2], uint16(clampInt(currentLimitAmps*10, 0, math.MaxUint16)))
	binary.LittleEndian.PutUint16(f.Data[2:4], uint16(clampInt(rampRateSeconds*1000, 0, math.MaxUint16)))
	if idleBrake {
		f.Data[4] = 1
	}
	return f
}

// followFrame pairs a rear controller to mirror its side's front controller.
func followFrame(followerID, leaderID uint32) can.Frame {
	var f can.Frame
	f.ID = funcFollow + followerID
	f.Length = 4
	binary.LittleEndian.PutUint32(f.Data[0:4], leaderID)
	return f
}

// zeroFrame zeroes a controller's encoder position.
func zeroFrame(nodeID uint32) can.Frame {
	var f can.Frame
	f.ID = funcZero + nodeID
	f.Length = 0
	return f
}

// status is the decoded periodic feedback frame from one controller.
type status struct {
	Rotations  float64 // cumulative motor rotations
	RPM        float64 // motor shaft speed
	CurrentAmp float64
}

// decodeStatus decodes a status frame. ok is false for other frame IDs.
func decodeStatus(f can.Frame) (nodeID uint32, s status, ok bool) {
	if f.ID < funcStatus || f.ID >= funcStatus+0x100 || f.Length < 8 {
		return 0, status{}, false
	}
	nodeID = f.ID - funcStatus
	s.Rotations = float64(int32(binary.LittleEndian.Uint32(f.Data[0:4]))) * 0.01
	s.RPM = float64(int16(binary.LittleEndian.Uint16(f.Data[4:6])))
	s.CurrentAmp = float64(int16(binary.LittleEndian.Uint16(f.Data[6:8]))) * 0.1
	return nodeID, s, true
}
