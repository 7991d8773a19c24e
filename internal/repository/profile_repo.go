package repository

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"reflow_oven/internal/models"
)

// MaxTempPoints bounds the fixed-size record.
const MaxTempPoints = 16

const (
	profileMagic   uint32 = 0x52464C57 // "RFLW"
	profileVersion uint16 = 1

	flagCalibrated     uint8 = 1 << 0
	flagDoorCalibrated uint8 = 1 << 1
)

var (
	ErrProfileBlank     = errors.New("profile: region is blank")
	ErrProfileCorrupt   = errors.New("profile: integrity check failed")
	ErrProfileUntrusted = errors.New("profile: calibrated flag not set")
	ErrVerifyFailed     = errors.New("profile: read-back does not match written record")
	ErrTooManyPoints    = fmt.Errorf("profile: more than %d temperature points", MaxTempPoints)
)

// profileRecord is the on-flash layout, little endian, followed by a CRC32 (IEEE).
type profileRecord struct {
	Magic       uint32
	Version     uint16
	PointCount  uint16
	Flags       uint8
	_           [3]byte
	FrontOffset float32
	BackOffset  float32
	DoorOpen    float32
	DoorClosed  float32
	LastCalMs   int64
	TempPoints  [MaxTempPoints]float32
	HeatingRate [MaxTempPoints][models.PowerBuckets]float32
	CoolingRate [MaxTempPoints][models.PowerBuckets]float32
}

// ProfileRecordSize is the number of bytes the profile occupies on flash.
var ProfileRecordSize = binary.Size(profileRecord{}) + 4

// ProfileStore persists the calibration profile at a fixed flash offset.
type ProfileStore struct {
	flash  Flash
	offset int64
}

func NewProfileStore(flash Flash, offset int64) *ProfileStore {
	return &ProfileStore{flash: flash, offset: offset}
}

// Save erases the covering sectors, programs the record and reads it back.
func (s *ProfileStore) Save(p models.CalibrationProfile) error {
	data, err := encodeProfile(p)
	if err != nil {
		return err
	}

	sector := int64(s.flash.SectorSize())
	first := s.offset - s.offset%sector
	for off := first; off < s.offset+int64(len(data)); off += sector {
		if err := s.flash.EraseSector(off); err != nil {
			return fmt.Errorf("erase profile sector: %w", err)
		}
	}
	if err := s.flash.Program(s.offset, data); err != nil {
		return fmt.Errorf("program profile: %w", err)
	}

	back := make([]byte, len(data))
	if _, err := s.flash.ReadAt(back, s.offset); err != nil {
		return fmt.Errorf("read back profile: %w", err)
	}
	if !bytes.Equal(back, data) {
		return ErrVerifyFailed
	}
	return nil
}

// Load reads the record. Blank, corrupt or untrusted regions return a zero profile
// and a sentinel error the caller maps to "not calibrated".
func (s *ProfileStore) Load() (models.CalibrationProfile, error) {
	raw := make([]byte, ProfileRecordSize)
	if _, err := s.flash.ReadAt(raw, s.offset); err != nil {
		return models.CalibrationProfile{}, fmt.Errorf("read profile: %w", err)
	}
	return decodeProfile(raw)
}

func encodeProfile(p models.CalibrationProfile) ([]byte, error) {
	th := p.Thermal
	n := len(th.TempPoints)
	if n > MaxTempPoints {
		return nil, ErrTooManyPoints
	}
	rec := profileRecord{
		Magic:       profileMagic,
		Version:     profileVersion,
		PointCount:  uint16(n),
		FrontOffset: p.FrontSensorOffset,
		BackOffset:  p.BackSensorOffset,
		DoorOpen:    p.Door.OpenPositionAngle,
		DoorClosed:  p.Door.ClosedPositionAngle,
	}
	if !p.LastCalibration.IsZero() {
		rec.LastCalMs = p.LastCalibration.UnixMilli()
	}
	if p.IsCalibrated {
		rec.Flags |= flagCalibrated
	}
	if p.Door.IsCalibrated {
		rec.Flags |= flagDoorCalibrated
	}
	for i := 0; i < n; i++ {
		rec.TempPoints[i] = th.TempPoints[i]
		if i < len(th.HeatingRate) {
			rec.HeatingRate[i] = th.HeatingRate[i]
		}
		if i < len(th.CoolingRate) {
			rec.CoolingRate[i] = th.CoolingRate[i]
		}
	}

	var buf bytes.Buffer
	buf.Grow(ProfileRecordSize)
	if err := binary.Write(&buf, binary.LittleEndian, &rec); err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	sum := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, sum); err != nil {
		return nil, fmt.Errorf("encode profile crc: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeProfile(raw []byte) (models.CalibrationProfile, error) {
	if len(raw) < ProfileRecordSize {
		return models.CalibrationProfile{}, ErrProfileCorrupt
	}
	if isErased(raw) {
		return models.CalibrationProfile{}, ErrProfileBlank
	}
	body := raw[:ProfileRecordSize-4]
	want := binary.LittleEndian.Uint32(raw[ProfileRecordSize-4:])
	if crc32.ChecksumIEEE(body) != want {
		return models.CalibrationProfile{}, ErrProfileCorrupt
	}

	var rec profileRecord
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, &rec); err != nil {
		return models.CalibrationProfile{}, fmt.Errorf("%w: %v", ErrProfileCorrupt, err)
	}
	if rec.Magic != profileMagic || rec.Version != profileVersion || int(rec.PointCount) > MaxTempPoints {
		return models.CalibrationProfile{}, ErrProfileCorrupt
	}
	if rec.Flags&(flagCalibrated|flagDoorCalibrated) == 0 {
		return models.CalibrationProfile{}, ErrProfileUntrusted
	}

	n := int(rec.PointCount)
	p := models.CalibrationProfile{
		FrontSensorOffset: rec.FrontOffset,
		BackSensorOffset:  rec.BackOffset,
		IsCalibrated:      rec.Flags&flagCalibrated != 0,
		Door: models.DoorCalibrationData{
			IsCalibrated:        rec.Flags&flagDoorCalibrated != 0,
			OpenPositionAngle:   rec.DoorOpen,
			ClosedPositionAngle: rec.DoorClosed,
		},
		Thermal: models.ThermalCalibrationSummary{
			TempPoints:  append([]float32(nil), rec.TempPoints[:n]...),
			HeatingRate: make([]models.RateRow, n),
			CoolingRate: make([]models.RateRow, n),
		},
	}
	for i := 0; i < n; i++ {
		p.Thermal.HeatingRate[i] = rec.HeatingRate[i]
		p.Thermal.CoolingRate[i] = rec.CoolingRate[i]
	}
	if rec.LastCalMs != 0 {
		p.LastCalibration = time.UnixMilli(rec.LastCalMs).UTC()
	}
	return p, nil
}

func isErased(b []byte) bool {
	for _, x := range b {
		if x != ErasedByte {
			return false
		}
	}
	return true
}
