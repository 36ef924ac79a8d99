package media

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

var (
	wavHeader = []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00")
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		artifact *models.Artifact
		want     Kind
	}{
		{name: "wav sniffed", artifact: &models.Artifact{Filename: "clip.bin", Data: wavHeader}, want: KindAudio},
		{name: "png sniffed", artifact: &models.Artifact{Filename: "frame", Data: pngHeader}, want: KindImage},
		{name: "extension fallback", artifact: &models.Artifact{Filename: "interview.MOV", Data: []byte("not a real container")}, want: KindVideo},
		{name: "content type fallback", artifact: &models.Artifact{Filename: "blob", ContentType: "audio/mpeg", Data: []byte("plain bytes")}, want: KindAudio},
		{name: "unknown", artifact: &models.Artifact{Filename: "notes.txt", Data: []byte("hello")}, want: KindUnknown},
		{name: "empty", artifact: &models.Artifact{Filename: "clip.wav"}, want: KindUnknown},
		{name: "nil", artifact: nil, want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, _ := Classify(tt.artifact)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestValidateFor(t *testing.T) {
	audio := &models.Artifact{Filename: "clip.wav", Data: wavHeader}
	video := &models.Artifact{Filename: "clip.mp4", Data: []byte("opaque")}
	image := &models.Artifact{Filename: "face.png", Data: pngHeader}
	text := &models.Artifact{Filename: "notes.txt", Data: []byte("hello")}

	assert.NoError(t, ValidateFor(models.ModalityVoice, audio))
	assert.NoError(t, ValidateFor(models.ModalityVoice, video))
	assert.Error(t, ValidateFor(models.ModalityVoice, image))
	assert.Error(t, ValidateFor(models.ModalityVoice, text))

	assert.NoError(t, ValidateFor(models.ModalityFace, video))
	assert.NoError(t, ValidateFor(models.ModalityFace, image))
	assert.Error(t, ValidateFor(models.ModalityFace, audio))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", ContentType(&models.Artifact{ContentType: "video/mp4", Data: []byte("x")}))
	assert.Equal(t, "audio/wav", ContentType(&models.Artifact{ContentType: "application/octet-stream", Data: wavHeader}))
	assert.Equal(t, "", ContentType(nil))
}
