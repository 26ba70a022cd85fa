// internal/config/config.go
package config

type Config struct {
	Log         LogConfig         `yaml:"log"`
	Device      DeviceConfig      `yaml:"device"`
	Library     map[string]any    `yaml:"library"`
	Registers   map[string]any    `yaml:"registers"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Trigger     *TriggerConfig    `yaml:"trigger"` // optional, opt-in
	Sinks       SinksConfig       `yaml:"sinks"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Type       string `yaml:"type"`       // ANY, T4, T7, T8, DIGIT
	Connection string `yaml:"connection"` // ANY, USB, ETHERNET, WIFI
	Identifier string `yaml:"identifier"` // serial, IP/host, or ANY
	TimeoutMs  int    `yaml:"timeout_ms"`

	// Name labels the device in the run status block.
	Name string `yaml:"name"`
}

// ---- ACQUISITION ----

type AcquisitionConfig struct {
	Channels     []string `yaml:"channels"`
	SamplingRate float64  `yaml:"sampling_rate"` // total Hz over all channels
	DurationS    float64  `yaml:"duration_s"`
	ScansPerRead int      `yaml:"scans_per_read"` // 0 => one chunk

	ResolutionIndex int `yaml:"resolution_index"`
	HandoffDepth    int `yaml:"handoff_depth"`

	// Analog input configuration; nil keeps the defaults.
	RangeVolts      *float64 `yaml:"range_volts"`
	NegativeChannel *int     `yaml:"negative_channel"`
}

// ---- TRIGGER ----

type TriggerConfig struct {
	Channel string `yaml:"channel"`
	Mode    string `yaml:"mode"` // frequency_in, pulse_width_in, conditional_reset
	Edge    string `yaml:"edge"` // rising, falling

	// TimeoutS is the wait for the trigger in seconds. Unset waits forever.
	TimeoutS *float64 `yaml:"timeout_s"`
}

// ---- SINKS ----

type SinksConfig struct {
	Msgpack *FileSinkConfig  `yaml:"msgpack"`
	CSV     *FileSinkConfig  `yaml:"csv"`
	S3      *S3SinkConfig    `yaml:"s3"`
	Redis   *RedisSinkConfig `yaml:"redis"`
	MQTT    *MQTTSinkConfig  `yaml:"mqtt"`

	// Status mirrors the run status block into a register server.
	Status *StatusSinkConfig `yaml:"status"`
}

type FileSinkConfig struct {
	Dir string `yaml:"dir"`
}

type S3SinkConfig struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type RedisSinkConfig struct {
	URL       string `yaml:"url"`
	Channel   string `yaml:"channel"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Retries   *int   `yaml:"retries"`
}

type MQTTSinkConfig struct {
	Broker    string `yaml:"broker"` // tcp://host:1883
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Topic     string `yaml:"topic"`
	QoS       byte   `yaml:"qos"`
	Retain    bool   `yaml:"retain"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type StatusSinkConfig struct {
	Endpoint  string `yaml:"endpoint"` // host:port
	Protocol  string `yaml:"protocol"` // modbus (default) or ingest
	UnitID    int    `yaml:"unit_id"`
	BaseSlot  uint16 `yaml:"base_slot"`
	TimeoutMs int    `yaml:"timeout_ms"`

	// ValuesAddress, when set, receives each channel's mean as a float32
	// (two holding registers, high word first) in channel order.
	ValuesAddress *uint16 `yaml:"values_address"`
}
