package extract

import (
	"github.com/recapio/recap/app/pipeline"
)

type Kind string

const (
	KindVideo   Kind = "video"
	KindArticle Kind = "article"
	KindSocial  Kind = "social"
	KindPodcast Kind = "podcast"
)

// Failure reasons stored in sentinel markers.
const (
	FailNetwork     = "NETWORK"
	FailBlocked     = "BLOCKED"
	FailEmpty       = "EMPTY"
	FailTimeout     = "TIMEOUT"
	FailUnsupported = "UNSUPPORTED"
)

const stageExtract = "EXTRACT"

// Result is what an extractor hands back. For podcasts no text is available
// yet: PendingTranscription is set and AudioURL carries the resolved audio.
type Result struct {
	Text                 string
	Title                string
	Author               string
	ThumbnailURL         string
	DurationSeconds      int
	PendingTranscription bool
	AudioURL             string
}

func failure(kind pipeline.Kind, reason string, err error) *pipeline.Error {
	return pipeline.NewError(kind, stageExtract, reason, err)
}

func transientFailure(reason string, err error) *pipeline.Error {
	return failure(pipeline.KindTransient, reason, err)
}

func permanentFailure(reason string, err error) *pipeline.Error {
	return failure(pipeline.KindPermanentInput, reason, err)
}

func rejectedFailure(reason string, err error) *pipeline.Error {
	return failure(pipeline.KindProviderRejected, reason, err)
}
