package bootconfig

import "testing"

func TestLoad_UsesDefaults_WhenNoFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/appliance.yaml")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Dashboard.Enabled != true {
		t.Errorf("expected Dashboard.Enabled default true, got %v", cfg.Dashboard.Enabled)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("expected Dashboard.Port default 8080, got %d", cfg.Dashboard.Port)
	}
	if cfg.Store.Dir != "cfg" {
		t.Errorf("expected Store.Dir default cfg, got %q", cfg.Store.Dir)
	}
	if cfg.FaceDB.FeatureSize != 128 {
		t.Errorf("expected FaceDB.FeatureSize default 128, got %d", cfg.FaceDB.FeatureSize)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected Logging.Level default info, got %q", cfg.Logging.Level)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("expected Metrics.Port default 9090, got %d", cfg.Metrics.Port)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Run("missing store dir", func(t *testing.T) {
		cfg := &Config{FaceDB: FaceDBConfig{FeatureSize: 1}}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for empty store.dir")
		}
	})

	t.Run("invalid facedb feature size", func(t *testing.T) {
		cfg := &Config{Store: StoreConfig{Dir: "cfg"}, FaceDB: FaceDBConfig{FeatureSize: 0}}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for non-positive facedb.feature_size")
		}
	})

	t.Run("dashboard port out of range when enabled", func(t *testing.T) {
		cfg := &Config{
			Store:  StoreConfig{Dir: "cfg"},
			FaceDB: FaceDBConfig{FeatureSize: 1},
			Dashboard: DashboardConfig{Enabled: true, Port: 70000},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for dashboard.port out of range")
		}
	})

	t.Run("dashboard auth requires username", func(t *testing.T) {
		cfg := &Config{
			Store:  StoreConfig{Dir: "cfg"},
			FaceDB: FaceDBConfig{FeatureSize: 1},
			Dashboard: DashboardConfig{Enabled: true, Port: 8080, AuthRequired: true},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for auth_required without username")
		}
	})

	t.Run("mqtt enabled requires broker", func(t *testing.T) {
		cfg := &Config{
			Store:  StoreConfig{Dir: "cfg"},
			FaceDB: FaceDBConfig{FeatureSize: 1},
			MQTT:   MQTTConfig{Enabled: true},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for mqtt enabled without broker")
		}
	})

	t.Run("multicore enabled requires listen or peer", func(t *testing.T) {
		cfg := &Config{
			Store:     StoreConfig{Dir: "cfg"},
			FaceDB:    FaceDBConfig{FeatureSize: 1},
			Multicore: MulticoreConfig{Enabled: true},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for multicore enabled without listen/peer")
		}
	})
}
