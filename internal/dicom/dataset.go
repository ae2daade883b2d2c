package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flatmapit/dicom-maker/internal/uid"
)

// Element is one attribute of a dataset. Value holds the raw wire bytes,
// already padded to even length.
type Element struct {
	Tag   Tag
	VR    string
	Value []byte
}

// Event records an observable side effect of dataset assembly: a value
// synthesized for an absent mandatory element, or padding applied to an
// odd-length value.
type Event struct {
	Tag    Tag
	Kind   EventKind
	Detail string
}

type EventKind string

const (
	EventDefaulted EventKind = "defaulted"
	EventPadded    EventKind = "padded"
)

// Dataset is an unordered tag→element map. Serialization order is imposed
// at encode time by Sorted, never by insertion order.
type Dataset struct {
	elements map[Tag]*Element
	events   []Event
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{elements: make(map[Tag]*Element)}
}

// SetBytes stores raw bytes under tag, padding odd-length values with the
// VR's pad byte. Padding is recorded as an event.
func (d *Dataset) SetBytes(tag Tag, vr string, value []byte) {
	if len(value)%2 == 1 {
		value = append(append([]byte{}, value...), PadByte(vr))
		d.events = append(d.events, Event{
			Tag:    tag,
			Kind:   EventPadded,
			Detail: fmt.Sprintf("%s value padded to %d bytes", vr, len(value)),
		})
	}
	d.elements[tag] = &Element{Tag: tag, VR: vr, Value: value}
}

// SetString stores a string value under tag.
func (d *Dataset) SetString(tag Tag, vr string, value string) {
	d.SetBytes(tag, vr, []byte(value))
}

// SetUint16 stores a binary unsigned short under tag.
func (d *Dataset) SetUint16(tag Tag, vr string, value uint16) {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, value)
	d.SetBytes(tag, vr, b)
}

// SetInt stores an integer-string (IS) value under tag.
func (d *Dataset) SetInt(tag Tag, value int) {
	d.SetString(tag, VRIntegerString, strconv.Itoa(value))
}

// Element returns the element stored under tag.
func (d *Dataset) Element(tag Tag) (*Element, bool) {
	e, ok := d.elements[tag]
	return e, ok
}

// String returns the trimmed string value of tag, or "" when absent.
func (d *Dataset) String(tag Tag) string {
	e, ok := d.elements[tag]
	if !ok {
		return ""
	}
	return strings.TrimRight(string(e.Value), "\x00 ")
}

// Uint16 returns the binary unsigned short value of tag.
func (d *Dataset) Uint16(tag Tag) (uint16, bool) {
	e, ok := d.elements[tag]
	if !ok || len(e.Value) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(e.Value[:2]), true
}

// Int returns the integer-string value of tag.
func (d *Dataset) Int(tag Tag) (int, bool) {
	v := d.String(tag)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// StringOrDefault returns the value of tag, synthesizing a compliant default
// when the element is absent. The substitution is recorded as an event so
// callers can surface it.
func (d *Dataset) StringOrDefault(tag Tag) string {
	if v := d.String(tag); v != "" {
		return v
	}
	def, ok := defaultValue(tag)
	if !ok {
		return ""
	}
	d.SetString(tag, VRFor(tag), def)
	d.events = append(d.events, Event{
		Tag:    tag,
		Kind:   EventDefaulted,
		Detail: fmt.Sprintf("%s absent, synthesized %q", tag.Name(), def),
	})
	return def
}

// Events returns the substitution and padding events recorded so far.
func (d *Dataset) Events() []Event {
	return d.events
}

// Len returns the number of elements.
func (d *Dataset) Len() int {
	return len(d.elements)
}

// Sorted returns the elements in ascending tag order, the order required on
// the wire regardless of how the dataset was assembled.
func (d *Dataset) Sorted() []*Element {
	out := make([]*Element, 0, len(d.elements))
	for _, e := range d.elements {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag.Less(out[j].Tag) })
	return out
}

// mandatoryTags are required of every composite instance regardless of SOP
// class.
var mandatoryTags = []Tag{
	TagPatientName,
	TagPatientID,
	TagStudyInstanceUID,
	TagSeriesInstanceUID,
	TagSOPInstanceUID,
	TagSOPClassUID,
	TagModality,
}

// Validate checks that all elements mandatory for the given SOP class are
// present and non-empty, returning a ValidationError naming the missing
// tags.
func (d *Dataset) Validate(sopClassUID string) error {
	var missing []Tag
	for _, t := range mandatoryTags {
		if d.String(t) == "" {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{SOPClassUID: sopClassUID, Missing: missing}
	}
	return nil
}

// Equal reports element-for-element equality, VR and bytes included.
func (d *Dataset) Equal(other *Dataset) bool {
	if len(d.elements) != len(other.elements) {
		return false
	}
	for tag, e := range d.elements {
		o, ok := other.elements[tag]
		if !ok || o.VR != e.VR || !bytes.Equal(o.Value, e.Value) {
			return false
		}
	}
	return true
}

var defaultUIDs = uid.NewGenerator("")

// defaultValue synthesizes a compliant value for a mandatory element.
func defaultValue(tag Tag) (string, bool) {
	now := time.Now()
	switch tag {
	case TagPatientName:
		return fmt.Sprintf("SYNTHETIC^PATIENT%04d", rand.IntN(10000)), true
	case TagPatientID:
		return fmt.Sprintf("SYN%08d", rand.IntN(100000000)), true
	case TagPatientBirthDate:
		return "19900101", true
	case TagPatientSex:
		return "O", true
	case TagStudyDate, TagSeriesDate:
		return now.Format("20060102"), true
	case TagStudyTime, TagSeriesTime:
		return now.Format("150405"), true
	case TagAccessionNumber:
		return fmt.Sprintf("ACC%09d", rand.IntN(1000000000)), true
	case TagStudyInstanceUID:
		return defaultUIDs.MustNew(uid.ScopeStudy), true
	case TagSeriesInstanceUID:
		return defaultUIDs.MustNew(uid.ScopeSeries), true
	case TagSOPInstanceUID:
		return defaultUIDs.MustNew(uid.ScopeInstance), true
	default:
		return "", false
	}
}
