// README: Config loader with env defaults for HTTP, DB, Redis, Kafka, auth, dispatch and simulation settings.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "NUBER"

type DispatchConfig struct {
	// Regions maps region name to the maximum number of simultaneous bookings.
	Regions               map[string]int
	LogEvents             bool
	DefaultRegionCapacity int
	MaxIdleDrivers        int
}

type StatsConfig struct {
	TickSeconds int
}

type SimulationConfig struct {
	Drivers           int
	Passengers        int
	DriverMaxDelay    time.Duration
	PassengerMaxDelay time.Duration
}

type Config struct {
	AppEnv string
	HTTP   struct {
		Addr string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
	}
	Dispatch   DispatchConfig
	Stats      StatsConfig
	Simulation SimulationConfig
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	cfg.AppEnv = v.GetString("app_env")
	cfg.HTTP.Addr = v.GetString("http_addr")
	cfg.DB.DSN = v.GetString("db_dsn")
	cfg.Redis.Addr = v.GetString("redis_addr")
	cfg.Kafka.Brokers = splitList(v.GetString("kafka_brokers"))
	cfg.Kafka.Topic = v.GetString("kafka_topic")
	cfg.Firebase.ProjectID = v.GetString("firebase_project_id")
	cfg.Firebase.CredentialsFile = v.GetString("firebase_credentials_file")

	regions, err := ParseRegions(v.GetString("regions"))
	if err != nil {
		return Config{}, err
	}
	cfg.Dispatch.Regions = regions
	cfg.Dispatch.LogEvents = v.GetBool("log_events")
	cfg.Dispatch.DefaultRegionCapacity = v.GetInt("default_region_capacity")
	cfg.Dispatch.MaxIdleDrivers = v.GetInt("max_idle_drivers")
	if cfg.Dispatch.DefaultRegionCapacity < 0 {
		return Config{}, fmt.Errorf("%s_DEFAULT_REGION_CAPACITY must not be negative", envPrefix)
	}

	cfg.Stats.TickSeconds = v.GetInt("stats_tick")
	if cfg.Stats.TickSeconds <= 0 {
		cfg.Stats.TickSeconds = 5
	}

	cfg.Simulation.Drivers = v.GetInt("sim_drivers")
	cfg.Simulation.Passengers = v.GetInt("sim_passengers")
	cfg.Simulation.DriverMaxDelay = v.GetDuration("sim_driver_max_delay")
	cfg.Simulation.PassengerMaxDelay = v.GetDuration("sim_passenger_max_delay")
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("db_dsn", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "nuber.bookings")
	v.SetDefault("firebase_project_id", "")
	v.SetDefault("firebase_credentials_file", "")
	v.SetDefault("regions", "north=10,south=10,east=10,west=10")
	v.SetDefault("log_events", false)
	v.SetDefault("default_region_capacity", 0)
	v.SetDefault("max_idle_drivers", 999)
	v.SetDefault("stats_tick", 5)
	v.SetDefault("sim_drivers", 25)
	v.SetDefault("sim_passengers", 200)
	v.SetDefault("sim_driver_max_delay", 100*time.Millisecond)
	v.SetDefault("sim_passenger_max_delay", 100*time.Millisecond)
}

// ParseRegions parses "north=1,south=3" into a region capacity map.
func ParseRegions(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, part := range splitList(s) {
		name, capStr, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("region %q: want name=capacity", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(capStr))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("region %q: capacity must be a positive integer", name)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("region %q configured twice", name)
		}
		out[name] = n
	}
	return out, nil
}

// RegionNames returns the configured region names in sorted order.
func (c DispatchConfig) RegionNames() []string {
	names := make([]string, 0, len(c.Regions))
	for name := range c.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
