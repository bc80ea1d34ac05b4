package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/threadsign/ideas-bot/internal/models"
)

func TestService_Ingest_DeduplicatesByExternalID(t *testing.T) {
	svc, st, gen, _, _ := newTestService()

	st.On("GetTopicByKey", mock.Anything, "devtools").Return(testTopic, nil)
	st.On("GetFeedByName", mock.Anything, "r/startups").Return(testFeed, nil)

	// Batch of 5 where 2 generated external ids already exist in the store.
	for i := 0; i < 5; i++ {
		externalID := fmt.Sprintf("post-%d", i)
		gen.On("GeneratePost", mock.Anything, "r/startups", "Developer Tools").
			Return(&models.GeneratedPost{ExternalID: externalID, Title: "Title " + externalID}, nil).Once()

		inserted := i >= 2 // first two are duplicates
		st.On("InsertSourceItem", mock.Anything, mock.MatchedBy(func(item *models.SourceItem) bool {
			return item.ExternalID == externalID
		})).Return(inserted, nil).Once()
	}

	result := svc.Ingest(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.PostsGenerated)
	assert.Equal(t, 2, result.PostsSkipped)
	st.AssertNumberOfCalls(t, "InsertSourceItem", 5)
}

func TestService_Ingest_GeneratorFailureDoesNotAbortBatch(t *testing.T) {
	svc, st, gen, _, _ := newTestService()
	svc.config.IngestBatchSize = 3

	st.On("GetTopicByKey", mock.Anything, "devtools").Return(testTopic, nil)
	st.On("GetFeedByName", mock.Anything, "r/startups").Return(testFeed, nil)

	gen.On("GeneratePost", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()
	gen.On("GeneratePost", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.GeneratedPost{ExternalID: "ok-1", Title: "T"}, nil).Once()
	gen.On("GeneratePost", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.GeneratedPost{ExternalID: "ok-2", Title: "T"}, nil).Once()

	st.On("InsertSourceItem", mock.Anything, mock.Anything).Return(true, nil)

	result := svc.Ingest(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.PostsGenerated)
	assert.Equal(t, 0, result.PostsSkipped)
	gen.AssertNumberOfCalls(t, "GeneratePost", 3)
}

func TestService_Ingest_InsertFailureDoesNotAbortBatch(t *testing.T) {
	svc, st, gen, _, _ := newTestService()
	svc.config.IngestBatchSize = 2

	st.On("GetTopicByKey", mock.Anything, "devtools").Return(testTopic, nil)
	st.On("GetFeedByName", mock.Anything, "r/startups").Return(testFeed, nil)

	gen.On("GeneratePost", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.GeneratedPost{ExternalID: "x1", Title: "T"}, nil).Once()
	gen.On("GeneratePost", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.GeneratedPost{ExternalID: "x2", Title: "T"}, nil).Once()

	st.On("InsertSourceItem", mock.Anything, mock.Anything).Return(false, assert.AnError).Once()
	st.On("InsertSourceItem", mock.Anything, mock.Anything).Return(true, nil).Once()

	result := svc.Ingest(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.PostsGenerated)
}

func TestService_Ingest_MissingTopicAborts(t *testing.T) {
	svc, st, gen, _, _ := newTestService()

	st.On("GetTopicByKey", mock.Anything, "devtools").Return(nil, assert.AnError)

	result := svc.Ingest(context.Background())

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	gen.AssertNotCalled(t, "GeneratePost", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Ingest_NewItemsStartUnprocessed(t *testing.T) {
	svc, st, gen, _, _ := newTestService()
	svc.config.IngestBatchSize = 1

	st.On("GetTopicByKey", mock.Anything, "devtools").Return(testTopic, nil)
	st.On("GetFeedByName", mock.Anything, "r/startups").Return(testFeed, nil)

	gen.On("GeneratePost", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.GeneratedPost{ExternalID: "fresh", Title: "T", Body: "B"}, nil)

	st.On("InsertSourceItem", mock.Anything, mock.MatchedBy(func(item *models.SourceItem) bool {
		return item.ProcessedAt == nil && item.ID != "" && item.FeedID == "feed-1"
	})).Return(true, nil)

	result := svc.Ingest(context.Background())

	assert.True(t, result.Success)
	st.AssertExpectations(t)
}
