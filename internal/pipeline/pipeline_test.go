package pipeline

import (
	"errors"
	"testing"

	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestHighlightSink_TagsMessagesWithSource(t *testing.T) {
	messages := make(chan Message, 3)
	sink := &highlightSink{messages: messages}

	sink.Artifact(models.HighlightArtifact{Title: "great save"})
	sink.Complete()
	sink.Error(errors.New("boom"))

	snippet := <-messages
	assert.Equal(t, "highlight", snippet.Source)
	assert.Equal(t, "great save", snippet.Snippet.Title)

	complete := <-messages
	assert.Equal(t, "highlight", complete.Source)
	assert.True(t, complete.Complete)

	failed := <-messages
	assert.Equal(t, "highlight", failed.Source)
	assert.EqualError(t, failed.Err, "boom")
}

func TestCommentarySink_CompleteIsNotForwarded(t *testing.T) {
	messages := make(chan Message, 2)
	sink := &commentarySink{messages: messages}

	sink.Chunk(models.CommentaryChunk{ChunkNumber: 1})
	sink.Complete() // must not enqueue anything
	sink.Error(errors.New("session dropped"))

	chunk := <-messages
	assert.Equal(t, "commentary", chunk.Source)
	assert.Equal(t, 1, chunk.Commentary.ChunkNumber)

	failed := <-messages
	assert.Equal(t, "commentary", failed.Source)
	assert.EqualError(t, failed.Err, "session dropped")

	select {
	case m := <-messages:
		t.Fatalf("unexpected extra message: %+v", m)
	default:
	}
}
