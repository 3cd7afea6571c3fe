package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Value is a single indicator: 1 legitimate, 0 suspicious or unknown, -1 phishing.
type Value int8

const (
	Phishing   Value = -1
	Suspicious Value = 0
	Legitimate Value = 1
)

func (v Value) valid() bool {
	return v >= Phishing && v <= Legitimate
}

// Name identifies one of the 30 indicators.
type Name string

const (
	HavingIPAddress          Name = "having_IP_Address"
	URLLength                Name = "URL_Length"
	ShorteningService        Name = "Shortening_Service"
	HavingAtSymbol           Name = "having_At_Symbol"
	DoubleSlashRedirecting   Name = "double_slash_redirecting"
	PrefixSuffix             Name = "Prefix_Suffix"
	HavingSubDomain          Name = "having_Sub_Domain"
	SSLFinalState            Name = "SSLfinal_State"
	DomainRegistrationLength Name = "Domain_registeration_length"
	Favicon                  Name = "Favicon"
	Port                     Name = "port"
	HTTPSToken               Name = "HTTPS_token"
	RequestURL               Name = "Request_URL"
	URLOfAnchor              Name = "URL_of_Anchor"
	LinksInTags              Name = "Links_in_tags"
	SFH                      Name = "SFH"
	SubmittingToEmail        Name = "Submitting_to_email"
	AbnormalURL              Name = "Abnormal_URL"
	Redirect                 Name = "Redirect"
	OnMouseover              Name = "On_mouseover"
	RightClick               Name = "RightClick"
	PopUpWindow              Name = "popUpWidnow"
	Iframe                   Name = "Iframe"
	AgeOfDomain              Name = "age_of_domain"
	DNSRecord                Name = "DNSRecord"
	WebTraffic               Name = "web_traffic"
	PageRank                 Name = "Page_Rank"
	GoogleIndex              Name = "Google_Index"
	LinksPointingToPage      Name = "Links_pointing_to_page"
	StatisticalReport        Name = "Statistical_report"
)

// Names is the order the classifier was trained with. It must not change
// without retraining the model and regenerating feature_names.txt.
var Names = [...]Name{
	HavingIPAddress, URLLength, ShorteningService, HavingAtSymbol,
	DoubleSlashRedirecting, PrefixSuffix, HavingSubDomain, SSLFinalState,
	DomainRegistrationLength, Favicon, Port, HTTPSToken, RequestURL,
	URLOfAnchor, LinksInTags, SFH, SubmittingToEmail, AbnormalURL,
	Redirect, OnMouseover, RightClick, PopUpWindow, Iframe, AgeOfDomain,
	DNSRecord, WebTraffic, PageRank, GoogleIndex, LinksPointingToPage,
	StatisticalReport,
}

// Count is the length of every Vector.
const Count = len(Names)

// ErrInternalConsistency means an analyzer failed to provide a feature it owns.
var ErrInternalConsistency = errors.New("internal consistency error")

// Vector holds one value per name in Names order.
type Vector struct {
	values [Count]Value
}

// Get returns the value of the named feature.
func (v Vector) Get(name Name) (Value, bool) {
	for i, n := range Names {
		if n == name {
			return v.values[i], true
		}
	}
	return 0, false
}

// Values returns a copy of the values in Names order.
func (v Vector) Values() []Value {
	out := make([]Value, Count)
	copy(out, v.values[:])
	return out
}

// Map returns the vector keyed by feature name.
func (v Vector) Map() map[Name]Value {
	m := make(map[Name]Value, Count)
	for i, n := range Names {
		m[n] = v.values[i]
	}
	return m
}

// Floats is the classifier input tensor.
func (v Vector) Floats() []float32 {
	out := make([]float32, Count)
	for i, val := range v.values {
		out[i] = float32(val)
	}
	return out
}

// MarshalJSON writes an object whose keys keep the training order.
func (v Vector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range Names {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(string(n)))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(int(v.values[i])))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the object form written by MarshalJSON.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var m map[Name]Value
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	p := NewPartial()
	for name, val := range m {
		p.Set(name, val)
	}
	out, err := Assemble(p)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Fallback records a feature that took its documented default instead of a
// computed value, and why.
type Fallback struct {
	Feature Name  `json:"feature"`
	Value   Value `json:"value"`
	Reason  error `json:"-"`
}

func (f Fallback) String() string {
	return fmt.Sprintf("%s=%d (%v)", f.Feature, f.Value, f.Reason)
}

// MarshalJSON includes the reason as text.
func (f Fallback) MarshalJSON() ([]byte, error) {
	reason := ""
	if f.Reason != nil {
		reason = f.Reason.Error()
	}
	return json.Marshal(struct {
		Feature Name   `json:"feature"`
		Value   Value  `json:"value"`
		Reason  string `json:"reason"`
	}{f.Feature, f.Value, reason})
}

// Partial is the set of values a single analyzer contributes.
type Partial struct {
	values    map[Name]Value
	fallbacks []Fallback
}

func NewPartial() *Partial {
	return &Partial{values: make(map[Name]Value)}
}

// Set stores a computed value.
func (p *Partial) Set(name Name, v Value) {
	p.values[name] = v
}

// SetFallback stores a default value together with the reason it was used.
func (p *Partial) SetFallback(name Name, v Value, reason error) {
	p.values[name] = v
	p.fallbacks = append(p.fallbacks, Fallback{Feature: name, Value: v, Reason: reason})
}

// Fallbacks returns the defaults recorded so far.
func (p *Partial) Fallbacks() []Fallback {
	return p.fallbacks
}

// Assemble merges analyzer contributions into a Vector. Every name must be
// provided by exactly one of the parts with a value in {-1,0,1}.
func Assemble(parts ...*Partial) (Vector, error) {
	var vec Vector
	for i, name := range Names {
		found := false
		for _, p := range parts {
			if p == nil {
				continue
			}
			val, ok := p.values[name]
			if !ok {
				continue
			}
			if found {
				return Vector{}, fmt.Errorf("%w: feature %s provided twice", ErrInternalConsistency, name)
			}
			if !val.valid() {
				return Vector{}, fmt.Errorf("%w: feature %s has value %d", ErrInternalConsistency, name, val)
			}
			vec.values[i] = val
			found = true
		}
		if !found {
			return Vector{}, fmt.Errorf("%w: feature %s missing", ErrInternalConsistency, name)
		}
	}
	return vec, nil
}
