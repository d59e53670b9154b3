package media

import (
	"errors"
	"testing"

	"remux/internal/services"
)

func strptr(s string) *string { return &s }

func boolptr(b bool) *bool { return &b }

func TestParseList(t *testing.T) {
	payload := `[{"id":1,"ext":"mp4","vcodec":"libsvtav1","b_v":"2M","dest":"ipfs"},{"id":2,"ext":"flac","acodec":"flac","compression_level":8}]`
	formats, err := ParseList(payload)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if len(formats) != 2 {
		t.Fatalf("expected 2 formats, got %d", len(formats))
	}
	if formats[0].Destination() != BackendIPFS {
		t.Fatalf("unexpected dest: %q", formats[0].Destination())
	}
	if formats[1].Destination() != BackendS5 {
		t.Fatalf("expected default dest s5, got %q", formats[1].Destination())
	}
	if !formats[0].HasVideo() || formats[0].HasAudio() {
		t.Fatal("format 1 should be video-only")
	}
	if formats[1].CompressionLevel == nil || *formats[1].CompressionLevel != 8 {
		t.Fatal("expected compression_level 8")
	}
}

func TestParseListRejectsBadPayloads(t *testing.T) {
	for _, payload := range []string{"", "   ", "{", `{"id":1}`} {
		if _, err := ParseList(payload); !errors.Is(err, services.ErrInvalidRequest) {
			t.Errorf("ParseList(%q) expected invalid request, got %v", payload, err)
		}
	}
}

func TestValidateList(t *testing.T) {
	valid := []FormatSpec{
		{ID: 1, Ext: "mp4", VideoCodec: strptr("libx264")},
		{ID: 2, Ext: "opus", AudioCodec: strptr("libopus")},
	}
	if err := ValidateList(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name    string
		formats []FormatSpec
	}{
		{"empty", nil},
		{"duplicate id", []FormatSpec{
			{ID: 1, Ext: "mp4", VideoCodec: strptr("libx264")},
			{ID: 1, Ext: "webm", VideoCodec: strptr("libvpx")},
		}},
		{"missing ext", []FormatSpec{{ID: 1, VideoCodec: strptr("libx264")}}},
		{"no codec", []FormatSpec{{ID: 1, Ext: "mp4"}}},
		{"blank codec", []FormatSpec{{ID: 1, Ext: "mp4", VideoCodec: strptr("  ")}}},
		{"bad dest", []FormatSpec{{ID: 1, Ext: "mp4", VideoCodec: strptr("libx264"), Dest: "sia"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateList(tc.formats); !errors.Is(err, services.ErrInvalidRequest) {
				t.Fatalf("expected invalid request, got %v", err)
			}
		})
	}
}

func TestUseGPUOverride(t *testing.T) {
	flags := Flags{GPU: true}
	noOverride := FormatSpec{ID: 1}
	if !noOverride.UseGPU(flags) {
		t.Fatal("expected job-level GPU flag to apply")
	}
	override := FormatSpec{ID: 2, GPU: boolptr(false)}
	if override.UseGPU(flags) {
		t.Fatal("expected per-format override to win")
	}
}

func TestOutputKeyDistinctness(t *testing.T) {
	base := FormatSpec{ID: 1, Ext: "mp4", VideoCodec: strptr("libx264"), Bitrate: strptr("2M")}
	flags := Flags{}

	key := OutputKey("cid-a", base, flags)
	if key != OutputKey("cid-a", base, flags) {
		t.Fatal("key must be deterministic")
	}

	variants := []FormatSpec{
		{ID: 2, Ext: "mp4", VideoCodec: strptr("libx264"), Bitrate: strptr("2M")},
		{ID: 1, Ext: "webm", VideoCodec: strptr("libx264"), Bitrate: strptr("2M")},
		{ID: 1, Ext: "mp4", VideoCodec: strptr("libx265"), Bitrate: strptr("2M")},
		{ID: 1, Ext: "mp4", VideoCodec: strptr("libx264"), Bitrate: strptr("4M")},
		{ID: 1, Ext: "mp4", VideoCodec: strptr("libx264"), Bitrate: strptr("2M"), GPU: boolptr(true)},
	}
	for i, variant := range variants {
		if OutputKey("cid-a", variant, flags) == key {
			t.Errorf("variant %d should produce a distinct key", i)
		}
	}
	if OutputKey("cid-b", base, flags) == key {
		t.Error("different source must produce a distinct key")
	}
	if OutputKey("cid-a", base, Flags{Encrypted: true}) == key {
		t.Error("encrypted flag must produce a distinct key")
	}
}

func TestSourceKey(t *testing.T) {
	if SourceKey("abc", false) == SourceKey("abc", true) {
		t.Fatal("encrypted sources must cache separately")
	}
}
