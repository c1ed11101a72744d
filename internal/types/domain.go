package types

import "time"

// EnvironmentalSnapshot is a single point-in-time bundle of readings used as
// Risk Engine input. All fields are expected to be normalized by the caller:
// no NaN values and an AirQualityIndex in [1,5].
type EnvironmentalSnapshot struct {
	TemperatureC    float64 `json:"temperature_c"`
	HumidityPct     float64 `json:"humidity_pct"`
	WindSpeedMps    float64 `json:"wind_speed_mps"`
	AirQualityIndex int     `json:"air_quality_index"`
}

// RiskAssessment is the derived, never-persisted output of the Risk Engine.
// Triggers and Advice are aligned by index.
type RiskAssessment struct {
	Level    RiskLevel `json:"level"`
	Score    int       `json:"score"`
	Triggers []string  `json:"triggers"`
	Advice   []string  `json:"advice"`
}

// SeverityCategory is presentation metadata derived purely from a RiskLevel.
type SeverityCategory struct {
	Category string `json:"category"`
	Color    string `json:"color"`
	Label    string `json:"label"`
}

// SubscriptionRecord is the persistent per-email subscription state.
// Email is the natural key and is always stored normalized.
type SubscriptionRecord struct {
	Email          string     `json:"email"`
	AutoNotify     bool       `json:"auto_notify"`
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SubscriptionStatus is the read model returned to callers asking whether an
// email is subscribed. Degraded is set when the store could not be consulted.
type SubscriptionStatus struct {
	Subscribed bool `json:"subscribed"`
	AutoNotify bool `json:"auto_notify"`
	Degraded   bool `json:"degraded,omitempty"`
}

// NotifyResult is the discriminated outcome of a notification request.
type NotifyResult struct {
	Status            NotifyStatus `json:"status"`
	ProviderMessageID string       `json:"provider_message_id,omitempty"`
	FailureKind       FailureKind  `json:"failure_kind,omitempty"`
	Reason            string       `json:"reason,omitempty"`
	SubscriptionSaved bool         `json:"subscription_saved"`
}

// Delivered reports whether the outcome allows the caller to proceed as if
// the message went out (sent or simulated).
func (r NotifyResult) Delivered() bool {
	return r.Status == NotifySent || r.Status == NotifySimulated
}

// UnsubscribeResult is the discriminated outcome of an unsubscribe request.
type UnsubscribeResult struct {
	Status UnsubscribeStatus `json:"status"`
	Reason string            `json:"reason,omitempty"`
}

// AutoNotifyResult is the outcome of a same-request auto-notify check.
type AutoNotifyResult struct {
	Status            AutoNotifyStatus `json:"status"`
	Reason            string           `json:"reason,omitempty"`
	ProviderMessageID string           `json:"provider_message_id,omitempty"`
}

// SendInput defines the contract for email transmission. Content is
// pre-rendered; providers do not apply server-side templates.
type SendInput struct {
	To          string
	From        SenderIdentity
	Subject     string
	BodyHTML    string
	BodyText    string
	ReferenceID string
}

// SenderIdentity defines the sender for outgoing emails.
type SenderIdentity struct {
	Name    string
	Address string
}

// Location identifies a resolved place.
type Location struct {
	Name    string  `json:"name"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// CurrentConditions is the normalized current-weather payload.
type CurrentConditions struct {
	TemperatureC  float64   `json:"temperature_c"`
	FeelsLikeC    float64   `json:"feels_like_c"`
	HumidityPct   float64   `json:"humidity_pct"`
	WindSpeedMps  float64   `json:"wind_speed_mps"`
	ConditionCode int       `json:"condition_code"`
	Condition     string    `json:"condition"`
	Description   string    `json:"description"`
	ObservedAt    time.Time `json:"observed_at"`
	LocationName  string    `json:"location_name"`
	Country       string    `json:"country,omitempty"`
}

// ForecastPoint is a single timestamped entry of the forecast series.
type ForecastPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  float64   `json:"humidity_pct"`
}

// AirQuality holds the AQI (1..5) plus pollutant concentrations in µg/m³.
// AQI is zero when the provider omitted it.
type AirQuality struct {
	AQI        int                `json:"aqi"`
	Components map[string]float64 `json:"components,omitempty"`
	MeasuredAt time.Time          `json:"measured_at"`
}
