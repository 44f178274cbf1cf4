package budget

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Section names one of the three component groups of a budget
type Section string

const (
	SectionFixedCosts         Section = "fixedCosts"
	SectionDepartmentExpenses Section = "departmentExpenses"
	SectionCSDDExpenses       Section = "csddExpenses"
)

// LookupOrder is the precedence used when a component key is searched across sections
var LookupOrder = []Section{SectionDepartmentExpenses, SectionFixedCosts, SectionCSDDExpenses}

// IsValid checks if the section is one of the known sections
func (s Section) IsValid() bool {
	switch s {
	case SectionFixedCosts, SectionDepartmentExpenses, SectionCSDDExpenses:
		return true
	}
	return false
}

// String returns the section name
func (s Section) String() string {
	return string(s)
}

// AllowsCustom reports whether components outside the well-known set may be added
func (s Section) AllowsCustom() bool {
	return s == SectionDepartmentExpenses || s == SectionCSDDExpenses
}

// ParseSection validates s as a section name
func ParseSection(s string) (Section, error) {
	sec := Section(s)
	if !sec.IsValid() {
		return "", shared.NewValidationError(fmt.Sprintf("invalid budget section %q", s))
	}
	return sec, nil
}

// ComponentKey identifies a component inside a section. Keys are used as
// document field names, so they never contain dots.
type ComponentKey string

// Well-known component keys
const (
	ComponentRent        ComponentKey = "rent"
	ComponentMaintenance ComponentKey = "maintenance"
	ComponentElectricity ComponentKey = "electricity"
	ComponentInternet    ComponentKey = "internet"
	ComponentRenovation  ComponentKey = "renovation"

	ComponentEmployeeSalary ComponentKey = "employeeSalary"

	ComponentTrainerFees    ComponentKey = "trainerFees"
	ComponentTravelExpenses ComponentKey = "travelExpenses"
	ComponentVenueCharges   ComponentKey = "venueCharges"
)

var wellKnownComponents = map[Section][]ComponentKey{
	SectionFixedCosts:         {ComponentRent, ComponentMaintenance, ComponentElectricity, ComponentInternet, ComponentRenovation},
	SectionDepartmentExpenses: {ComponentEmployeeSalary},
	SectionCSDDExpenses:       {ComponentTrainerFees, ComponentTravelExpenses, ComponentVenueCharges},
}

var componentKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// WellKnownComponents returns the closed set of keys defined for section
func WellKnownComponents(section Section) []ComponentKey {
	keys := wellKnownComponents[section]
	out := make([]ComponentKey, len(keys))
	copy(out, keys)
	return out
}

// IsWellKnown reports whether key belongs to the closed set of section
func (s Section) IsWellKnown(key ComponentKey) bool {
	for _, k := range wellKnownComponents[s] {
		if k == key {
			return true
		}
	}
	return false
}

// Validate checks the key's syntax
func (k ComponentKey) Validate() error {
	if k == "" {
		return shared.NewValidationError("budget component is required")
	}
	if !componentKeyPattern.MatchString(string(k)) {
		return shared.NewValidationError(fmt.Sprintf("invalid budget component key %q", string(k)))
	}
	return nil
}

// String returns the key
func (k ComponentKey) String() string {
	return string(k)
}

// CustomComponentKey derives a camelCase key from a free-text display name,
// for example "Printing & Stationery" becomes "printingStationery".
func CustomComponentKey(displayName string) ComponentKey {
	words := strings.FieldsFunc(displayName, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for i, w := range words {
		w = strings.ToLower(w)
		if i > 0 {
			w = strings.ToUpper(w[:1]) + w[1:]
		}
		b.WriteString(w)
	}
	key := b.String()
	if key != "" && unicode.IsDigit(rune(key[0])) {
		key = "c" + key
	}
	return ComponentKey(key)
}

// Component is one sub-ledger of a budget. Well-known components have a fixed
// key; custom components additionally carry the display name they were created with.
type Component struct {
	Allocated   decimal.Decimal `json:"allocated"`
	Spent       decimal.Decimal `json:"spent"`
	Custom      bool            `json:"custom,omitempty"`
	DisplayName string          `json:"displayName,omitempty"`
}

// NewComponent creates a well-known component with the given allocation
func NewComponent(allocated decimal.Decimal) Component {
	return Component{Allocated: allocated, Spent: decimal.Zero}
}

// NewCustomComponent creates a custom component labelled with displayName
func NewCustomComponent(displayName string, allocated decimal.Decimal) Component {
	return Component{
		Allocated:   allocated,
		Spent:       decimal.Zero,
		Custom:      true,
		DisplayName: strings.TrimSpace(displayName),
	}
}

// Remaining returns allocated minus spent. It is negative when over allocated.
func (c Component) Remaining() decimal.Decimal {
	return c.Allocated.Sub(c.Spent)
}

// OverAllocated reports whether spend has exceeded a non-zero allocation
func (c Component) OverAllocated() bool {
	return c.Allocated.IsPositive() && c.Spent.GreaterThan(c.Allocated)
}

// Label returns the display name for custom components and the key otherwise
func (c Component) Label(key ComponentKey) string {
	if c.Custom && c.DisplayName != "" {
		return c.DisplayName
	}
	return string(key)
}

// ComponentSet holds the components of one section keyed by component key
type ComponentSet map[ComponentKey]Component

// Keys returns the set's keys in lexical order
func (cs ComponentSet) Keys() []ComponentKey {
	keys := make([]ComponentKey, 0, len(cs))
	for k := range cs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// TotalAllocated sums the allocations of every component in the set
func (cs ComponentSet) TotalAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.Allocated)
	}
	return total
}

// TotalSpent sums the spend of every component in the set
func (cs ComponentSet) TotalSpent() decimal.Decimal {
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.Spent)
	}
	return total
}

// validateFor checks every key and component against the rules of section
func (cs ComponentSet) validateFor(section Section) error {
	for key, c := range cs {
		if err := key.Validate(); err != nil {
			return err
		}
		if c.Allocated.IsNegative() {
			return shared.NewValidationError(fmt.Sprintf("%s.%s: allocation cannot be negative", section, key))
		}
		if section.IsWellKnown(key) {
			if c.Custom {
				return shared.NewValidationError(fmt.Sprintf("%s.%s: well-known component cannot be marked custom", section, key))
			}
			continue
		}
		if !section.AllowsCustom() {
			return shared.NewValidationError(fmt.Sprintf("%s does not accept custom component %q", section, key))
		}
		if !c.Custom || c.DisplayName == "" {
			return shared.NewValidationError(fmt.Sprintf("%s.%s: custom component needs a display name", section, key))
		}
	}
	return nil
}

// ComponentRef locates a component inside a budget
type ComponentRef struct {
	Section   Section
	Key       ComponentKey
	Component Component
}

// FieldPath returns the dotted path of the component's spent counter
func (r ComponentRef) FieldPath() string {
	return SpentPath(r.Section, r.Key)
}

// SpentPath returns the dotted document path of a component's spent counter
func SpentPath(section Section, key ComponentKey) string {
	return fmt.Sprintf("%s.%s.spent", section, key)
}

// ComponentIndex is a flat key to component map over all three sections.
// When a key is present in more than one section the first section of
// LookupOrder wins.
type ComponentIndex map[ComponentKey]ComponentRef

// Lookup finds key in the index
func (ix ComponentIndex) Lookup(key ComponentKey) (ComponentRef, bool) {
	ref, ok := ix[key]
	return ref, ok
}
