// Package media classifies uploaded artifacts before they are forwarded to
// modality services.
package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

// Kind is the coarse media family of an upload.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindAudio   Kind = "audio"
	KindVideo   Kind = "video"
	KindImage   Kind = "image"
)

var extensionKinds = map[string]Kind{
	".wav":  KindAudio,
	".mp3":  KindAudio,
	".m4a":  KindAudio,
	".flac": KindAudio,
	".ogg":  KindAudio,
	".mp4":  KindVideo,
	".mov":  KindVideo,
	".mkv":  KindVideo,
	".avi":  KindVideo,
	".webm": KindVideo,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".bmp":  KindImage,
}

// Classify decides the media family of an artifact. Content sniffing wins;
// the filename extension and then the declared content type are fallbacks
// for containers the sniffer cannot place.
func Classify(a *models.Artifact) (Kind, string) {
	if a.Empty() {
		return KindUnknown, ""
	}

	detected := mimetype.Detect(a.Data)
	for m := detected; m != nil; m = m.Parent() {
		if kind := kindFromMIME(m.String()); kind != KindUnknown {
			return kind, detected.String()
		}
	}

	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(a.Filename))]; ok {
		return kind, detected.String()
	}

	return kindFromMIME(a.ContentType), detected.String()
}

// ValidateFor checks that the artifact is acceptable to the modality service.
// Voice accepts audio or video (the voice service extracts the soundtrack);
// face accepts video or still images.
func ValidateFor(m models.Modality, a *models.Artifact) error {
	kind, detected := Classify(a)
	allowed := acceptedKinds(m)
	for _, k := range allowed {
		if kind == k {
			return nil
		}
	}
	name := ""
	if a != nil {
		name = a.Filename
	}
	return fmt.Errorf("unsupported %s file %q (detected %s)", m, name, firstNonEmpty(detected, string(kind)))
}

// ContentType returns the declared content type, or the sniffed one when the
// client did not send any.
func ContentType(a *models.Artifact) string {
	if a == nil {
		return ""
	}
	if ct := strings.TrimSpace(a.ContentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if len(a.Data) == 0 {
		return "application/octet-stream"
	}
	return mimetype.Detect(a.Data).String()
}

func acceptedKinds(m models.Modality) []Kind {
	switch m {
	case models.ModalityVoice:
		return []Kind{KindAudio, KindVideo}
	case models.ModalityFace:
		return []Kind{KindVideo, KindImage}
	default:
		return nil
	}
}

func kindFromMIME(mime string) Kind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	default:
		return KindUnknown
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
