package cache

import (
	"strings"
	"testing"
)

func TestCommuteKey(t *testing.T) {
	key := CommuteKey(47.6145, -122.3210, 47.6062, -122.3321)

	if !strings.HasPrefix(key, "commute:") {
		t.Errorf("Expected commute: prefix, got %q", key)
	}

	same := CommuteKey(47.6145, -122.3210, 47.6062, -122.3321)
	if key != same {
		t.Error("Expected identical coordinates to produce identical keys")
	}

	// Differences below the rounding precision collapse onto one key
	nearby := CommuteKey(47.61451, -122.32104, 47.6062, -122.3321)
	if key != nearby {
		t.Error("Expected coordinates within rounding precision to share a key")
	}

	different := CommuteKey(47.7000, -122.3210, 47.6062, -122.3321)
	if key == different {
		t.Error("Expected distinct origins to produce distinct keys")
	}
}
