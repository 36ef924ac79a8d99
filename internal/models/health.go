package models

// Health is the body of GET /health.
type Health struct {
	Status   string `json:"status"`
	TextAPI  string `json:"text_api"`
	VoiceAPI string `json:"voice_api"`
	FaceAPI  string `json:"face_api"`
	Policy   string `json:"policy"`
}
