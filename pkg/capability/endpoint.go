// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capability

// Names of the endpoint capabilities.
const (
	ActiveTimeoutPeriod               = "ActiveTimeoutPeriod"
	AuthorizationDetails              = "AuthorizationDetails"
	ChangePropagationPeriod           = "ChangePropagationPeriod"
	ChangeRetentionPeriod             = "ChangeRetentionPeriod"
	MaxConcurrentMultipart            = "MaxConcurrentMultipart"
	MaxDataObjectSize                 = "MaxDataObjectSize"
	MaxPartSize                       = "MaxPartSize"
	MaxSessionClientCount             = "MaxSessionClientCount"
	MaxSessionGlobalCount             = "MaxSessionGlobalCount"
	MaxWebSocketFramePayloadSize      = "MaxWebSocketFramePayloadSize"
	MaxWebSocketMessagePayloadSize    = "MaxWebSocketMessagePayloadSize"
	MultipartMessageTimeoutPeriod     = "MultipartMessageTimeoutPeriod"
	ResponseTimeoutPeriod             = "ResponseTimeoutPeriod"
	RequestSessionTimeoutPeriod       = "RequestSessionTimeoutPeriod"
	SessionEstablishmentTimeoutPeriod = "SessionEstablishmentTimeoutPeriod"
	SupportsAlternateRequestUris      = "SupportsAlternateRequestUris"
	SupportsMessageHeaderExtension    = "SupportsMessageHeaderExtension"
)

// EndpointSchema is the closed set of recognized endpoint capabilities.
var EndpointSchema = Schema{
	ActiveTimeoutPeriod:               KindInt,
	AuthorizationDetails:              KindStrings,
	ChangePropagationPeriod:           KindInt,
	ChangeRetentionPeriod:             KindInt,
	MaxConcurrentMultipart:            KindInt,
	MaxDataObjectSize:                 KindInt,
	MaxPartSize:                       KindInt,
	MaxSessionClientCount:             KindInt,
	MaxSessionGlobalCount:             KindInt,
	MaxWebSocketFramePayloadSize:      KindInt,
	MaxWebSocketMessagePayloadSize:    KindInt,
	MultipartMessageTimeoutPeriod:     KindInt,
	ResponseTimeoutPeriod:             KindInt,
	RequestSessionTimeoutPeriod:       KindInt,
	SessionEstablishmentTimeoutPeriod: KindInt,
	SupportsAlternateRequestUris:      KindBool,
	SupportsMessageHeaderExtension:    KindBool,
}

// Endpoint is a typed view on the endpoint capabilities. Nil fields are absent. Periods are in seconds, sizes in
// bytes. Capabilities without a field are kept in Other.
type Endpoint struct {
	ActiveTimeoutPeriod               *int64   `toml:"active-timeout-period"`
	AuthorizationDetails              []string `toml:"authorization-details"`
	ChangePropagationPeriod           *int64   `toml:"change-propagation-period"`
	ChangeRetentionPeriod             *int64   `toml:"change-retention-period"`
	MaxConcurrentMultipart            *int64   `toml:"max-concurrent-multipart"`
	MaxDataObjectSize                 *int64   `toml:"max-data-object-size"`
	MaxPartSize                       *int64   `toml:"max-part-size"`
	MaxSessionClientCount             *int64   `toml:"max-session-client-count"`
	MaxSessionGlobalCount             *int64   `toml:"max-session-global-count"`
	MaxWebSocketFramePayloadSize      *int64   `toml:"max-websocket-frame-payload-size"`
	MaxWebSocketMessagePayloadSize    *int64   `toml:"max-websocket-message-payload-size"`
	MultipartMessageTimeoutPeriod     *int64   `toml:"multipart-message-timeout-period"`
	ResponseTimeoutPeriod             *int64   `toml:"response-timeout-period"`
	RequestSessionTimeoutPeriod       *int64   `toml:"request-session-timeout-period"`
	SessionEstablishmentTimeoutPeriod *int64   `toml:"session-establishment-timeout-period"`
	SupportsAlternateRequestUris      *bool    `toml:"supports-alternate-request-uris"`
	SupportsMessageHeaderExtension    *bool    `toml:"supports-message-header-extension"`

	Other map[string]Value `toml:"-"`
}

func (e Endpoint) ints() map[string]*int64 {
	return map[string]*int64{
		ActiveTimeoutPeriod:               e.ActiveTimeoutPeriod,
		ChangePropagationPeriod:           e.ChangePropagationPeriod,
		ChangeRetentionPeriod:             e.ChangeRetentionPeriod,
		MaxConcurrentMultipart:            e.MaxConcurrentMultipart,
		MaxDataObjectSize:                 e.MaxDataObjectSize,
		MaxPartSize:                       e.MaxPartSize,
		MaxSessionClientCount:             e.MaxSessionClientCount,
		MaxSessionGlobalCount:             e.MaxSessionGlobalCount,
		MaxWebSocketFramePayloadSize:      e.MaxWebSocketFramePayloadSize,
		MaxWebSocketMessagePayloadSize:    e.MaxWebSocketMessagePayloadSize,
		MultipartMessageTimeoutPeriod:     e.MultipartMessageTimeoutPeriod,
		ResponseTimeoutPeriod:             e.ResponseTimeoutPeriod,
		RequestSessionTimeoutPeriod:       e.RequestSessionTimeoutPeriod,
		SessionEstablishmentTimeoutPeriod: e.SessionEstablishmentTimeoutPeriod,
	}
}

// ToSet converts this Endpoint into a mutable Set.
func (e Endpoint) ToSet() *Set {
	s := NewSet()

	for name, v := range e.Other {
		_ = s.Set(name, v)
	}

	for name, n := range e.ints() {
		if n != nil {
			_ = s.Set(name, Int(*n))
		}
	}
	if e.AuthorizationDetails != nil {
		_ = s.Set(AuthorizationDetails, Strings(e.AuthorizationDetails...))
	}
	if e.SupportsAlternateRequestUris != nil {
		_ = s.Set(SupportsAlternateRequestUris, Bool(*e.SupportsAlternateRequestUris))
	}
	if e.SupportsMessageHeaderExtension != nil {
		_ = s.Set(SupportsMessageHeaderExtension, Bool(*e.SupportsMessageHeaderExtension))
	}

	return s
}

func optInt(s *Set, name string) *int64 {
	if n, ok := s.Int(name); ok {
		return &n
	}
	return nil
}

func optBool(s *Set, name string) *bool {
	if b, ok := s.Bool(name); ok {
		return &b
	}
	return nil
}

// EndpointFromSet creates the typed view of a Set. Recognized capabilities of an unexpected kind are treated as
// absent; unrecognized capabilities end up in Other.
func EndpointFromSet(s *Set) Endpoint {
	e := Endpoint{
		ActiveTimeoutPeriod:               optInt(s, ActiveTimeoutPeriod),
		ChangePropagationPeriod:           optInt(s, ChangePropagationPeriod),
		ChangeRetentionPeriod:             optInt(s, ChangeRetentionPeriod),
		MaxConcurrentMultipart:            optInt(s, MaxConcurrentMultipart),
		MaxDataObjectSize:                 optInt(s, MaxDataObjectSize),
		MaxPartSize:                       optInt(s, MaxPartSize),
		MaxSessionClientCount:             optInt(s, MaxSessionClientCount),
		MaxSessionGlobalCount:             optInt(s, MaxSessionGlobalCount),
		MaxWebSocketFramePayloadSize:      optInt(s, MaxWebSocketFramePayloadSize),
		MaxWebSocketMessagePayloadSize:    optInt(s, MaxWebSocketMessagePayloadSize),
		MultipartMessageTimeoutPeriod:     optInt(s, MultipartMessageTimeoutPeriod),
		ResponseTimeoutPeriod:             optInt(s, ResponseTimeoutPeriod),
		RequestSessionTimeoutPeriod:       optInt(s, RequestSessionTimeoutPeriod),
		SessionEstablishmentTimeoutPeriod: optInt(s, SessionEstablishmentTimeoutPeriod),
		SupportsAlternateRequestUris:      optBool(s, SupportsAlternateRequestUris),
		SupportsMessageHeaderExtension:    optBool(s, SupportsMessageHeaderExtension),
	}
	if ss, ok := s.Strings(AuthorizationDetails); ok {
		e.AuthorizationDetails = ss
	}

	for _, name := range s.Names() {
		if _, known := EndpointSchema[name]; known {
			continue
		}
		if e.Other == nil {
			e.Other = make(map[string]Value)
		}
		e.Other[name] = s.Get(name)
	}

	return e
}
