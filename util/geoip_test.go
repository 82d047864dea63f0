package util

import (
	"testing"
)

func TestInitGeoIP_EmptyPath(t *testing.T) {
	t.Setenv("GEOIP_DB_PATH", "")
	if err := InitGeoIP(""); err != nil {
		t.Fatalf("expected no-op init to succeed, got %v", err)
	}
}

func TestInitGeoIP_NonExistentFile(t *testing.T) {
	if err := InitGeoIP("/nonexistent/path/GeoLite2-City.mmdb"); err == nil {
		t.Fatalf("expected error for missing mmdb file")
	}
}

func TestGetIPLocation_EmptyIP(t *testing.T) {
	city, country := GetIPLocation("")
	if city != "" || country != "" {
		t.Fatalf("expected empty location for empty IP, got %s/%s", city, country)
	}
}

func TestGetIPLocation_PrivateIPs(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "::1", "10.1.2.3", "192.168.0.10"} {
		city, country := GetIPLocation(ip)
		if city != "" || country != "" {
			t.Errorf("expected empty location for private IP %s, got %s/%s", ip, city, country)
		}
	}
}

func TestGetIPLocation_NoDB(t *testing.T) {
	CloseGeoIP()
	city, country := GetIPLocation("8.8.8.8")
	if city != "" || country != "" {
		t.Fatalf("expected empty location without a GeoIP DB, got %s/%s", city, country)
	}
}

func TestGetIPLocation_InvalidIP(t *testing.T) {
	city, country := GetIPLocation("not-an-ip")
	if city != "" || country != "" {
		t.Fatalf("expected empty location for invalid IP, got %s/%s", city, country)
	}
}

func TestGetGeoIPCacheMetrics(t *testing.T) {
	CloseGeoIP()
	_, _ = GetIPLocation("8.8.4.4")
	_, misses, _ := GetGeoIPCacheMetrics()
	if misses == 0 {
		t.Fatalf("expected at least one cache miss recorded")
	}
}
