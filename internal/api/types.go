package api

type TranslationRequest struct {
	Model         string      `json:"model,omitempty"`
	Input         *InputValue `json:"input"`
	BeamSize      *int        `json:"beam_size,omitempty"`
	LengthPenalty *float64    `json:"length_penalty,omitempty"`
	MaxLength     *int        `json:"max_length,omitempty"`
	ReturnAll     *bool       `json:"return_all,omitempty"`
	ClipBeam      *bool       `json:"clip_beam,omitempty"`
	FillPad       *bool       `json:"fill_pad,omitempty"`
	Sample        *bool       `json:"sample,omitempty"`
	Seed          *int64      `json:"seed,omitempty"`
	Temperature   *float64    `json:"temperature,omitempty"`
	TopK          *int        `json:"top_k,omitempty"`
	TopP          *float64    `json:"top_p,omitempty"`
}

type TranslationResponse struct {
	ID           string             `json:"id"`
	Object       string             `json:"object"`
	Created      int64              `json:"created"`
	Model        string             `json:"model"`
	Translations []TranslationEntry `json:"translations"`
	Usage        TranslationUsage   `json:"usage"`
}

type TranslationEntry struct {
	Index        int                `json:"index"`
	Text         string             `json:"text"`
	Tokens       []int              `json:"tokens"`
	Score        float32            `json:"score"`
	Alternatives []AlternativeEntry `json:"alternatives,omitempty"`
}

type AlternativeEntry struct {
	Text   string  `json:"text"`
	Tokens []int   `json:"tokens"`
	Score  float32 `json:"score"`
}

type TranslationUsage struct {
	SourceTokens    int     `json:"source_tokens"`
	GeneratedTokens int     `json:"generated_tokens"`
	Steps           int     `json:"steps"`
	Batches         int     `json:"batches"`
	DurationMS      int64   `json:"duration_ms"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}
