package model

// StationConfig describes the station this device is bound to.
type StationConfig struct {
	IsValid          bool       `json:"isValid"`
	DeviceType       DeviceType `json:"deviceType"`
	DeviceName       string     `json:"deviceName"`
	DisplayName      string     `json:"displayName"`
	LogEventName     string     `json:"logEventName"`
	PhotoDisplayName string     `json:"photoDisplayName"`
	OKKeywords       string     `json:"okKeywords"`
}

// StationConfigResponse is the single element of a facility directory reply.
type StationConfigResponse struct {
	DeviceType   *int   `json:"deviceType" validate:"required"`
	DeviceName   string `json:"deviceName"`
	LCDName      string `json:"LCDName"`
	LogEvent     string `json:"logEvent"`
	PhotoDisplay string `json:"photoDisplay"`
	OKKeywords   string `json:"OKKeywords"`
}
