package classifier

import (
	"NetFlowRollup/internal/model"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	inside := PrefixSet{netip.MustParsePrefix("140.125.0.0/16")}.Contains

	cases := []struct {
		src, dst string
		want     model.Direction
	}{
		{"8.8.8.8", "140.125.1.2", model.ExternalInbound},
		{"140.125.1.2", "8.8.8.8", model.ExternalOutbound},
		{"140.125.1.2", "140.125.200.3", model.InternalBoth},
		{"8.8.8.8", "1.1.1.1", model.Unclassified},
		// Neighbouring /16 must not be treated as inside.
		{"140.126.0.1", "140.124.255.255", model.Unclassified},
	}
	for _, tc := range cases {
		rec := &model.FlowRecord{
			Src: netip.MustParseAddr(tc.src),
			Dst: netip.MustParseAddr(tc.dst),
		}
		assert.Equal(t, tc.want, Classify(rec, inside), "%s -> %s", tc.src, tc.dst)
	}
}

func TestPrefixSet_Multiple(t *testing.T) {
	set := PrefixSet{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.10.0/24"),
	}
	assert.True(t, set.Contains(netip.MustParseAddr("10.20.30.40")))
	assert.True(t, set.Contains(netip.MustParseAddr("192.168.10.254")))
	assert.False(t, set.Contains(netip.MustParseAddr("192.168.11.1")))
	assert.False(t, PrefixSet(nil).Contains(netip.MustParseAddr("10.0.0.1")))
}
