// Package media models the requested output formats of a transcode job and
// derives the cache keys that make encode work content-addressable.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"remux/internal/services"
)

// Backend names a content storage destination.
type Backend string

const (
	BackendS5   Backend = "s5"
	BackendIPFS Backend = "ipfs"
)

// Valid reports whether the backend is one of the supported storage networks.
func (b Backend) Valid() bool {
	return b == BackendS5 || b == BackendIPFS
}

// FormatSpec describes one requested output. Field names on the wire match the
// portal's media_formats JSON; optional tuning fields stay nil when absent.
type FormatSpec struct {
	ID               uint32  `json:"id"`
	Ext              string  `json:"ext"`
	VideoCodec       *string `json:"vcodec,omitempty"`
	AudioCodec       *string `json:"acodec,omitempty"`
	Preset           *string `json:"preset,omitempty"`
	Profile          *string `json:"profile,omitempty"`
	Channels         *uint8  `json:"ch,omitempty"`
	VideoFilter      *string `json:"vf,omitempty"`
	Bitrate          *string `json:"b_v,omitempty"`
	SampleRate       *string `json:"ar,omitempty"`
	MinRate          *string `json:"minrate,omitempty"`
	MaxRate          *string `json:"maxrate,omitempty"`
	BufSize          *string `json:"bufsize,omitempty"`
	GPU              *bool   `json:"gpu,omitempty"`
	CompressionLevel *uint8  `json:"compression_level,omitempty"`
	Dest             Backend `json:"dest,omitempty"`
}

// Flags carries the job-level switches that apply to every format.
type Flags struct {
	Encrypted bool
	GPU       bool
}

// Destination returns the storage backend for this format, defaulting to S5.
func (f FormatSpec) Destination() Backend {
	if f.Dest == "" {
		return BackendS5
	}
	return f.Dest
}

// UseGPU resolves the per-format GPU override against the job-level flag.
func (f FormatSpec) UseGPU(flags Flags) bool {
	if f.GPU != nil {
		return *f.GPU
	}
	return flags.GPU
}

// HasVideo reports whether a video codec is requested.
func (f FormatSpec) HasVideo() bool {
	return f.VideoCodec != nil && strings.TrimSpace(*f.VideoCodec) != ""
}

// HasAudio reports whether an audio codec is requested.
func (f FormatSpec) HasAudio() bool {
	return f.AudioCodec != nil && strings.TrimSpace(*f.AudioCodec) != ""
}

// ParseList decodes a media_formats JSON array.
func ParseList(payload string) ([]FormatSpec, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrInvalidRequest, "media", "parse", "empty media_formats payload", nil)
	}
	var formats []FormatSpec
	if err := json.Unmarshal([]byte(trimmed), &formats); err != nil {
		return nil, services.Wrap(services.ErrInvalidRequest, "media", "parse", "malformed media_formats JSON", err)
	}
	return formats, nil
}

// ValidateList enforces the submission-time invariants: the list is non-empty,
// format IDs are unique, every entry names an extension and at least one codec,
// and destinations are recognized backends.
func ValidateList(formats []FormatSpec) error {
	if len(formats) == 0 {
		return services.Wrap(services.ErrInvalidRequest, "media", "validate", "no formats requested", nil)
	}
	seen := make(map[uint32]struct{}, len(formats))
	for _, format := range formats {
		if _, dup := seen[format.ID]; dup {
			return services.Wrap(services.ErrInvalidRequest, "media", "validate",
				fmt.Sprintf("duplicate format id %d", format.ID), nil)
		}
		seen[format.ID] = struct{}{}
		if strings.TrimSpace(format.Ext) == "" {
			return services.Wrap(services.ErrInvalidRequest, "media", "validate",
				fmt.Sprintf("format %d: ext must be set", format.ID), nil)
		}
		if !format.HasVideo() && !format.HasAudio() {
			return services.Wrap(services.ErrInvalidRequest, "media", "validate",
				fmt.Sprintf("format %d: no codec specified", format.ID), nil)
		}
		if !format.Destination().Valid() {
			return services.Wrap(services.ErrInvalidRequest, "media", "validate",
				fmt.Sprintf("format %d: unknown dest %q", format.ID, format.Dest), nil)
		}
	}
	return nil
}

// SourceKey derives the cache key for a downloaded source. Encrypted sources
// are fetched through a different portal and cache separately.
func SourceKey(sourceCID string, encrypted bool) string {
	if encrypted {
		return "src:enc:" + sourceCID
	}
	return "src:" + sourceCID
}

// outputKeyFields is the encode-affecting subset hashed into the output cache
// key. Any change to a field that alters encoder output must be present here.
type outputKeyFields struct {
	SourceCID        string  `json:"source_cid"`
	FormatID         uint32  `json:"format_id"`
	Ext              string  `json:"ext"`
	VideoCodec       *string `json:"vcodec,omitempty"`
	AudioCodec       *string `json:"acodec,omitempty"`
	Preset           *string `json:"preset,omitempty"`
	Profile          *string `json:"profile,omitempty"`
	Channels         *uint8  `json:"ch,omitempty"`
	VideoFilter      *string `json:"vf,omitempty"`
	Bitrate          *string `json:"b_v,omitempty"`
	SampleRate       *string `json:"ar,omitempty"`
	MinRate          *string `json:"minrate,omitempty"`
	MaxRate          *string `json:"maxrate,omitempty"`
	BufSize          *string `json:"bufsize,omitempty"`
	CompressionLevel *uint8  `json:"compression_level,omitempty"`
	GPU              bool    `json:"gpu"`
	Encrypted        bool    `json:"encrypted"`
}

// OutputKey derives the cache key for a transcoded output from the source, the
// format's encode-affecting fields, and the resolved GPU/encryption flags.
func OutputKey(sourceCID string, format FormatSpec, flags Flags) string {
	fields := outputKeyFields{
		SourceCID:        sourceCID,
		FormatID:         format.ID,
		Ext:              format.Ext,
		VideoCodec:       format.VideoCodec,
		AudioCodec:       format.AudioCodec,
		Preset:           format.Preset,
		Profile:          format.Profile,
		Channels:         format.Channels,
		VideoFilter:      format.VideoFilter,
		Bitrate:          format.Bitrate,
		SampleRate:       format.SampleRate,
		MinRate:          format.MinRate,
		MaxRate:          format.MaxRate,
		BufSize:          format.BufSize,
		CompressionLevel: format.CompressionLevel,
		GPU:              format.UseGPU(flags),
		Encrypted:        flags.Encrypted,
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		// Marshal of a plain struct cannot fail; keep the key stable anyway.
		payload = []byte(fmt.Sprintf("%s/%d/%s", sourceCID, format.ID, format.Ext))
	}
	sum := sha256.Sum256(payload)
	return "out:" + hex.EncodeToString(sum[:16])
}
