// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package objectdb

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

const (
	priorityLevels = 16

	// priority 6 is reserved for minimum on/off time
	priorityMinimumOnOff = 6

	protocolVersion  = 1
	protocolRevision = 14
)

// ChangeFunc observes a successful write. values is the property value
// after the write; for a commandable present value that is the value now
// in effect.
type ChangeFunc func(oid bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier, values []tag.Value)

type property struct {
	values []tag.Value
	array  bool
}

type object struct {
	id          bacnet.ObjectIdentifier
	props       map[bacnet.PropertyIdentifier]*property
	writable    map[bacnet.PropertyIdentifier]bool
	commandable bool
	slots       [priorityLevels]*tag.Value
}

// DB is an in-memory object table. It implements bacnet.ObjectStore and
// bacnet.PropertyLister.
type DB struct {
	mu       sync.RWMutex
	device   bacnet.ObjectIdentifier
	vendorID uint16
	password string
	objects  map[bacnet.ObjectIdentifier]*object
	order    []bacnet.ObjectIdentifier
	onChange []ChangeFunc
}

// Open loads the YAML object table at path
func Open(path string) (*DB, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// New builds a DB from a validated Config
func New(cfg *Config) (*DB, error) {
	db := &DB{
		device:   bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, cfg.Device.Instance),
		vendorID: cfg.Device.VendorID,
		password: cfg.Device.Password,
		objects:  make(map[bacnet.ObjectIdentifier]*object),
	}

	for i, oc := range cfg.Objects {
		o, err := newObject(oc)
		if err != nil {
			return nil, fmt.Errorf("objectdb: objects[%d]: %w", i, err)
		}
		db.objects[o.id] = o
		db.order = append(db.order, o.id)
	}
	sort.Slice(db.order, func(i, j int) bool {
		a, b := db.order[i], db.order[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Instance < b.Instance
	})
	db.order = append([]bacnet.ObjectIdentifier{db.device}, db.order...)

	dev, err := db.newDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("objectdb: device: %w", err)
	}
	db.objects[dev.id] = dev
	return db, nil
}

func (db *DB) newDevice(dc DeviceConfig) (*object, error) {
	o := &object{
		id:       db.device,
		props:    make(map[bacnet.PropertyIdentifier]*property),
		writable: make(map[bacnet.PropertyIdentifier]bool),
	}
	o.set(bacnet.PropertyObjectIdentifier, tag.ObjectIDValue(o.id.Wire()))
	o.set(bacnet.PropertyObjectName, tag.TextValue(dc.Name))
	o.set(bacnet.PropertyObjectType, tag.EnumeratedValue(uint32(bacnet.ObjectTypeDevice)))
	o.set(bacnet.PropertySystemStatus, tag.EnumeratedValue(uint32(bacnet.DeviceStatusOperational)))
	o.set(bacnet.PropertyVendorName, tag.TextValue(dc.VendorName))
	o.set(bacnet.PropertyVendorIdentifier, tag.UnsignedValue(uint32(dc.VendorID)))
	o.set(bacnet.PropertyModelName, tag.TextValue(dc.ModelName))
	o.set(bacnet.PropertyFirmwareRevision, tag.TextValue(dc.FirmwareRevision))
	o.set(bacnet.PropertyApplicationSoftwareVersion, tag.TextValue(dc.SoftwareVersion))
	o.set(bacnet.PropertyProtocolVersion, tag.UnsignedValue(protocolVersion))
	o.set(bacnet.PropertyProtocolRevision, tag.UnsignedValue(protocolRevision))
	o.set(bacnet.PropertyMaxApduLengthAccepted, tag.UnsignedValue(1476))
	o.set(bacnet.PropertySegmentationSupported, tag.EnumeratedValue(uint32(bacnet.SegmentationNone)))
	o.set(bacnet.PropertyDatabaseRevision, tag.UnsignedValue(0))
	if dc.Description != "" {
		o.set(bacnet.PropertyDescription, tag.TextValue(dc.Description))
	}
	if dc.Location != "" {
		o.set(bacnet.PropertyLocation, tag.TextValue(dc.Location))
	}

	list := make([]tag.Value, len(db.order))
	for i, oid := range db.order {
		list[i] = tag.ObjectIDValue(oid.Wire())
	}
	o.props[bacnet.PropertyObjectList] = &property{values: list, array: true}

	if err := o.custom(dc.Properties); err != nil {
		return nil, err
	}
	o.propertyList()
	return o, nil
}

func newObject(oc ObjectConfig) (*object, error) {
	oid, err := bacnet.ParseObjectIdentifier(oc.ID)
	if err != nil {
		return nil, err
	}
	o := &object{
		id:          oid,
		props:       make(map[bacnet.PropertyIdentifier]*property),
		writable:    make(map[bacnet.PropertyIdentifier]bool),
		commandable: oc.Commandable,
	}
	o.set(bacnet.PropertyObjectIdentifier, tag.ObjectIDValue(oid.Wire()))
	o.set(bacnet.PropertyObjectName, tag.TextValue(oc.Name))
	o.set(bacnet.PropertyObjectType, tag.EnumeratedValue(uint32(oid.Type)))
	o.set(bacnet.PropertyStatusFlags, tag.BitStringValue(bacnet.StatusFlags{}.BitString()))
	o.set(bacnet.PropertyEventState, tag.EnumeratedValue(uint32(bacnet.EventStateNormal)))
	o.set(bacnet.PropertyOutOfService, tag.BooleanValue(false))
	if oc.Description != "" {
		o.set(bacnet.PropertyDescription, tag.TextValue(oc.Description))
	}
	if oc.Units != "" {
		u, err := parseUnits(oc.Units)
		if err != nil {
			return nil, err
		}
		o.set(bacnet.PropertyUnits, tag.EnumeratedValue(uint32(u)))
	}

	if oc.PresentValue != nil {
		o.set(bacnet.PropertyPresentValue, o.native(oc.PresentValue.Values[0]))
	}
	if oc.Commandable {
		relinquish := oc.RelinquishDefault
		if relinquish == nil {
			relinquish = oc.PresentValue
		}
		o.set(bacnet.PropertyRelinquishDefault, o.native(relinquish.Values[0]))
		o.props[bacnet.PropertyPriorityArray] = &property{array: true}
		o.writable[bacnet.PropertyPresentValue] = true
		o.refresh()
	}

	if err := o.custom(oc.Properties); err != nil {
		return nil, err
	}
	for _, name := range oc.Writable {
		prop, ok := bacnet.ParsePropertyIdentifier(name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown writable property %q", oid, name)
		}
		if _, ok := o.props[prop]; !ok {
			return nil, fmt.Errorf("%s: writable property %s is not present", oid, prop)
		}
		o.writable[prop] = true
	}
	o.propertyList()
	return o, nil
}

func parseUnits(s string) (bacnet.EngineeringUnits, error) {
	if u, ok := bacnet.ParseEngineeringUnits(s); ok {
		return u, nil
	}
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		return bacnet.EngineeringUnits(n), nil
	}
	return 0, fmt.Errorf("unknown units %q", s)
}

func (o *object) set(prop bacnet.PropertyIdentifier, v tag.Value) {
	o.props[prop] = &property{values: []tag.Value{v}}
}

// custom adds the free-form properties. Identity properties cannot be
// overridden.
func (o *object) custom(props map[string]Value) error {
	for name, v := range props {
		prop, ok := bacnet.ParsePropertyIdentifier(name)
		if !ok {
			return fmt.Errorf("%s: unknown property %q", o.id, name)
		}
		switch prop {
		case bacnet.PropertyObjectIdentifier, bacnet.PropertyObjectType,
			bacnet.PropertyObjectList, bacnet.PropertyPropertyList, bacnet.PropertyPriorityArray:
			return fmt.Errorf("%s: property %s is maintained by the table", o.id, prop)
		}
		values := v.Values
		if !v.Array && len(values) == 0 {
			// yaml leaves a null scalar unset
			values = []tag.Value{tag.NullValue()}
		}
		o.props[prop] = &property{values: values, array: v.Array}
	}
	return nil
}

// native gives binary objects their enumerated present value when YAML
// says true or false
func (o *object) native(v tag.Value) tag.Value {
	switch o.id.Type {
	case bacnet.ObjectTypeBinaryInput, bacnet.ObjectTypeBinaryOutput, bacnet.ObjectTypeBinaryValue:
		if v.Tag == tag.AppBoolean {
			if v.Boolean {
				return tag.EnumeratedValue(1)
			}
			return tag.EnumeratedValue(0)
		}
	}
	return v
}

// propertyList fills property-list, which leaves out the identity
// properties and itself
func (o *object) propertyList() {
	var list []tag.Value
	for _, p := range o.sortedProperties() {
		switch p {
		case bacnet.PropertyObjectIdentifier, bacnet.PropertyObjectName,
			bacnet.PropertyObjectType, bacnet.PropertyPropertyList:
			continue
		}
		list = append(list, tag.EnumeratedValue(uint32(p)))
	}
	o.props[bacnet.PropertyPropertyList] = &property{values: list, array: true}
}

func (o *object) sortedProperties() []bacnet.PropertyIdentifier {
	out := make([]bacnet.PropertyIdentifier, 0, len(o.props))
	for p := range o.props {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// refresh recomputes present-value and priority-array from the slots
func (o *object) refresh() {
	pa := make([]tag.Value, priorityLevels)
	pv := o.props[bacnet.PropertyRelinquishDefault].values[0]
	found := false
	for i, slot := range o.slots {
		if slot == nil {
			pa[i] = tag.NullValue()
			continue
		}
		pa[i] = *slot
		if !found {
			pv, found = *slot, true
		}
	}
	o.props[bacnet.PropertyPriorityArray].values = pa
	o.set(bacnet.PropertyPresentValue, pv)
}

func propertyError(code bacnet.ErrorCode) error {
	return bacnet.NewBACnetError(bacnet.ErrorClassProperty, code)
}

func (p *property) encode(index *uint32) ([]byte, error) {
	w := tag.NewBuffer(16)
	switch {
	case index == nil:
		for _, v := range p.values {
			w.Value(v)
		}
	case !p.array:
		return nil, propertyError(bacnet.ErrorCodePropertyIsNotAnArray)
	case *index == 0:
		w.Unsigned(uint32(len(p.values)))
	case *index > uint32(len(p.values)):
		return nil, propertyError(bacnet.ErrorCodeInvalidArrayIndex)
	default:
		w.Value(p.values[*index-1])
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DeviceID returns the device instance
func (db *DB) DeviceID() uint32 {
	return db.device.Instance
}

// VendorID returns the configured vendor identifier
func (db *DB) VendorID() uint16 {
	return db.vendorID
}

// Password returns the configured device password, empty when none
func (db *DB) Password() string {
	return db.password
}

// OnChange registers f to run after every successful write. f runs on
// the writer's goroutine without the table lock held.
func (db *DB) OnChange(f ChangeFunc) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.onChange = append(db.onChange, f)
}

// ReadProperty implements bacnet.ObjectStore
func (db *DB) ReadProperty(oid bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier, index *uint32) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.objects[oid]
	if !ok {
		return nil, bacnet.NewBACnetError(bacnet.ErrorClassObject, bacnet.ErrorCodeUnknownObject)
	}
	p, ok := o.props[prop]
	if !ok {
		return nil, propertyError(bacnet.ErrorCodeUnknownProperty)
	}
	return p.encode(index)
}

// Value returns the decoded value of a property
func (db *DB) Value(oid bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier) ([]tag.Value, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.objects[oid]
	if !ok {
		return nil, bacnet.NewBACnetError(bacnet.ErrorClassObject, bacnet.ErrorCodeUnknownObject)
	}
	p, ok := o.props[prop]
	if !ok {
		return nil, propertyError(bacnet.ErrorCodeUnknownProperty)
	}
	return append([]tag.Value(nil), p.values...), nil
}

// WriteProperty implements bacnet.ObjectStore. Only properties listed as
// writable accept writes, and a write must keep the property's type.
// Commandable present values go through the priority array; Null
// relinquishes the slot.
func (db *DB) WriteProperty(oid bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier, index *uint32, value []byte, priority *uint8) error {
	values, err := tag.DecodeApplicationValues(value)
	if err != nil || len(values) == 0 {
		return propertyError(bacnet.ErrorCodeInvalidDataType)
	}

	db.mu.Lock()
	o, ok := db.objects[oid]
	if !ok {
		db.mu.Unlock()
		return bacnet.NewBACnetError(bacnet.ErrorClassObject, bacnet.ErrorCodeUnknownObject)
	}
	if _, ok := o.props[prop]; !ok {
		db.mu.Unlock()
		return propertyError(bacnet.ErrorCodeUnknownProperty)
	}
	if !o.writable[prop] {
		db.mu.Unlock()
		return propertyError(bacnet.ErrorCodeWriteAccessDenied)
	}
	if o.commandable && prop == bacnet.PropertyPresentValue {
		err = o.command(index, values, priority)
	} else {
		err = o.write(prop, index, values)
	}
	if err != nil {
		db.mu.Unlock()
		return err
	}
	if o.commandable && prop == bacnet.PropertyRelinquishDefault {
		o.refresh()
	}
	now := append([]tag.Value(nil), o.props[prop].values...)
	funcs := db.onChange
	db.mu.Unlock()

	for _, f := range funcs {
		f(oid, prop, now)
	}
	return nil
}

// Set replaces a property value locally, bypassing the writable check.
// On a commandable object the present value set is the relinquish
// default.
func (db *DB) Set(oid bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier, v tag.Value) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.objects[oid]
	if !ok {
		return bacnet.NewBACnetError(bacnet.ErrorClassObject, bacnet.ErrorCodeUnknownObject)
	}
	if o.commandable && prop == bacnet.PropertyPresentValue {
		prop = bacnet.PropertyRelinquishDefault
	}
	if _, ok := o.props[prop]; !ok {
		return propertyError(bacnet.ErrorCodeUnknownProperty)
	}
	if err := o.write(prop, nil, []tag.Value{o.native(v)}); err != nil {
		return err
	}
	if o.commandable {
		o.refresh()
	}
	return nil
}

func (o *object) command(index *uint32, values []tag.Value, priority *uint8) error {
	if index != nil {
		return propertyError(bacnet.ErrorCodePropertyIsNotAnArray)
	}
	if len(values) != 1 {
		return propertyError(bacnet.ErrorCodeInvalidDataType)
	}
	level := uint8(priorityLevels)
	if priority != nil {
		level = *priority
	}
	if level < 1 || level > priorityLevels {
		return propertyError(bacnet.ErrorCodeValueOutOfRange)
	}
	if level == priorityMinimumOnOff {
		return propertyError(bacnet.ErrorCodeWriteAccessDenied)
	}

	v := o.native(values[0])
	if v.Tag == tag.AppNull {
		o.slots[level-1] = nil
	} else {
		if v.Tag != o.props[bacnet.PropertyRelinquishDefault].values[0].Tag {
			return propertyError(bacnet.ErrorCodeInvalidDataType)
		}
		o.slots[level-1] = &v
	}
	o.refresh()
	return nil
}

func (o *object) write(prop bacnet.PropertyIdentifier, index *uint32, values []tag.Value) error {
	p := o.props[prop]
	if index != nil {
		switch {
		case !p.array:
			return propertyError(bacnet.ErrorCodePropertyIsNotAnArray)
		case *index == 0:
			// resizing is not supported
			return propertyError(bacnet.ErrorCodeWriteAccessDenied)
		case *index > uint32(len(p.values)):
			return propertyError(bacnet.ErrorCodeInvalidArrayIndex)
		case len(values) != 1 || values[0].Tag != p.values[*index-1].Tag:
			return propertyError(bacnet.ErrorCodeInvalidDataType)
		}
		p.values[*index-1] = values[0]
		return nil
	}
	if !p.array {
		if len(values) != 1 {
			return propertyError(bacnet.ErrorCodeInvalidDataType)
		}
		values[0] = o.native(values[0])
		if len(p.values) == 1 && values[0].Tag != p.values[0].Tag {
			return propertyError(bacnet.ErrorCodeInvalidDataType)
		}
	}
	p.values = values
	return nil
}

// Objects implements bacnet.ObjectStore. The device comes first, then
// the objects by type and instance.
func (db *DB) Objects() []bacnet.ObjectIdentifier {
	return append([]bacnet.ObjectIdentifier(nil), db.order...)
}

// Properties implements bacnet.PropertyLister
func (db *DB) Properties(oid bacnet.ObjectIdentifier) []bacnet.PropertyIdentifier {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.objects[oid]
	if !ok {
		return nil
	}
	return o.sortedProperties()
}
