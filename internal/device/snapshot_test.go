// File: internal/device/snapshot_test.go
package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalverson/ovation-cli/internal/engage"
)

const sampleDump = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" class="androidx.recyclerview.widget.RecyclerView" resource-id="com.strava:id/recycler_view" bounds="[0,0][1080,1920]">
    <node index="1" text="" content-desc="Give kudos" class="android.widget.ImageButton" clickable="true" bounds="[48,520][168,640]" />
    <node index="2" text="" content-desc="Kudos given" class="android.widget.ImageButton" clickable="true" bounds="[48,1020][168,1140]" />
    <node index="3" text="" content-desc="Give kudos" class="android.widget.ImageButton" clickable="false" bounds="[48,1520][168,1640]" />
    <node index="4" text="Comment" content-desc="Comment" class="android.widget.ImageButton" clickable="true" bounds="[200,520][320,640]" />
    <node index="5" text="" content-desc="Give kudos" class="android.widget.ImageButton" clickable="true" bounds="[968,1700][848,1820]" />
  </node>
</hierarchy>
UI hierchary dumped to: /dev/tty`

func TestParseHierarchy(t *testing.T) {
	els, err := parseHierarchy(sampleDump)
	require.NoError(t, err)
	// The comment button is not a kudos control and the inverted-bounds
	// node is dropped entirely.
	require.Len(t, els, 3)

	assert.Equal(t, "Give kudos", els[0].Label)
	assert.False(t, els[0].Filled)
	assert.True(t, els[0].Actionable)
	assert.Equal(t, engage.Rect{X: 48, Y: 520, W: 120, H: 120}, els[0].Bounds)
	assert.Equal(t, engage.KeyFor(els[0].Bounds), els[0].Key)

	assert.True(t, els[1].Filled)
	assert.False(t, els[2].Actionable, "non-clickable controls are never tapped")
}

func TestParseHierarchy_NoDocument(t *testing.T) {
	_, err := parseHierarchy("ERROR: could not get idle state.")
	assert.Error(t, err)
}

func TestParseHierarchy_MissingPrologue(t *testing.T) {
	els, err := parseHierarchy(`<hierarchy rotation="0"><node content-desc="Give kudos" clickable="true" bounds="[0,10][50,60]"/></hierarchy>`)
	require.NoError(t, err)
	require.Len(t, els, 1)
}

func TestParseBounds(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    engage.Rect
		wantErr bool
	}{
		{name: "ok", raw: "[48,520][168,640]", want: engage.Rect{X: 48, Y: 520, W: 120, H: 120}},
		{name: "zero area", raw: "[10,10][10,10]", want: engage.Rect{X: 10, Y: 10}},
		{name: "inverted", raw: "[168,640][48,520]", wantErr: true},
		{name: "garbage", raw: "48,520,168,640", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseBounds(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHasFeedMarker(t *testing.T) {
	assert.True(t, hasFeedMarker(sampleDump, "com.strava"))
	assert.False(t, hasFeedMarker(sampleDump, "com.other"))
	assert.False(t, hasFeedMarker(`<hierarchy><node resource-id="com.strava:id/settings"/></hierarchy>`, "com.strava"))
}
