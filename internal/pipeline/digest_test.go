package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/threadsign/ideas-bot/internal/models"
)

func activeSub(id string, topicIDs ...string) models.Subscription {
	return models.Subscription{ID: id, UserID: "user-" + id, IsActive: true, TopicIDs: topicIDs}
}

func ideasByID(ids ...string) []models.Idea {
	ideas := make([]models.Idea, len(ids))
	for i, id := range ids {
		ideas[i] = models.Idea{ID: id, Title: "Idea " + id, Score: 75, TopicID: "topic-1"}
	}
	return ideas
}

var devtoolsTopics = []models.Topic{{ID: "topic-1", Key: "devtools", Label: "Developer Tools"}}

func TestService_SendDigests_ExcludesAlreadySentIdeas(t *testing.T) {
	svc, st, _, _, sender := newTestService()

	sub := activeSub("s1", "topic-1")
	st.On("ListActiveSubscriptions", mock.Anything).Return([]models.Subscription{sub}, nil)
	st.On("GetUserEmail", mock.Anything, "user-s1").Return("s1@example.com", nil)
	st.On("ListDeliveries", mock.Anything, "s1").Return([]models.Delivery{
		{ID: "d1", SubscriptionID: "s1", IdeaIDs: []string{"i1", "i2"}},
	}, nil)
	st.On("ListIdeasByTopics", mock.Anything, []string{"topic-1"}, 10).
		Return(ideasByID("i3", "i2", "i1"), nil)
	st.On("ListTopicsByIDs", mock.Anything, []string{"topic-1"}).Return(devtoolsTopics, nil)

	sender.On("SendDigest", mock.Anything, mock.MatchedBy(func(d *models.Digest) bool {
		return len(d.Ideas) == 1 && d.Ideas[0].ID == "i3" && d.Recipient == "s1@example.com"
	})).Return("<msg-1@provider>", nil)

	st.On("InsertDelivery", mock.Anything, mock.MatchedBy(func(d *models.Delivery) bool {
		return d.SubscriptionID == "s1" &&
			len(d.IdeaIDs) == 1 && d.IdeaIDs[0] == "i3" &&
			d.MessageID == "<msg-1@provider>"
	})).Return(nil)

	result := svc.SendDigests(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SubscriptionsProcessed)
	assert.Equal(t, 1, result.EmailsSent)
	assert.Empty(t, result.Errors)
	st.AssertExpectations(t)
}

func TestService_SendDigests_TopiclessSubscriptionSkippedEntirely(t *testing.T) {
	svc, st, _, _, sender := newTestService()

	st.On("ListActiveSubscriptions", mock.Anything).Return([]models.Subscription{
		activeSub("empty"),
	}, nil)

	result := svc.SendDigests(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SubscriptionsProcessed)
	assert.Equal(t, 0, result.EmailsSent)
	assert.Empty(t, result.Errors)
	// No store or sender traffic at all for a topicless subscription.
	st.AssertNotCalled(t, "GetUserEmail", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "ListIdeasByTopics", mock.Anything, mock.Anything, mock.Anything)
	sender.AssertNotCalled(t, "SendDigest", mock.Anything, mock.Anything)
}

func TestService_SendDigests_NothingNewIsSilentNoOp(t *testing.T) {
	svc, st, _, _, sender := newTestService()

	sub := activeSub("s1", "topic-1")
	st.On("ListActiveSubscriptions", mock.Anything).Return([]models.Subscription{sub}, nil)
	st.On("GetUserEmail", mock.Anything, "user-s1").Return("s1@example.com", nil)
	st.On("ListDeliveries", mock.Anything, "s1").Return([]models.Delivery{
		{ID: "d1", SubscriptionID: "s1", IdeaIDs: []string{"i1"}},
		{ID: "d2", SubscriptionID: "s1", IdeaIDs: []string{"i2"}},
	}, nil)
	st.On("ListIdeasByTopics", mock.Anything, []string{"topic-1"}, 10).
		Return(ideasByID("i1", "i2"), nil)

	result := svc.SendDigests(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.EmailsSent)
	assert.Empty(t, result.Errors)
	sender.AssertNotCalled(t, "SendDigest", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "InsertDelivery", mock.Anything, mock.Anything)
}

func TestService_SendDigests_SecondRunSendsNothing(t *testing.T) {
	// First run delivers i1 and i2; with no new ideas created in between,
	// the second run must write no deliveries and send no email.
	svc, st, _, _, sender := newTestService()

	sub := activeSub("s1", "topic-1")
	st.On("ListActiveSubscriptions", mock.Anything).Return([]models.Subscription{sub}, nil)
	st.On("GetUserEmail", mock.Anything, "user-s1").Return("s1@example.com", nil)
	st.On("ListIdeasByTopics", mock.Anything, []string{"topic-1"}, 10).
		Return(ideasByID("i1", "i2"), nil)
	st.On("ListTopicsByIDs", mock.Anything, []string{"topic-1"}).Return(devtoolsTopics, nil)

	// Run 1: no prior deliveries.
	st.On("ListDeliveries", mock.Anything, "s1").Return([]models.Delivery{}, nil).Once()
	sender.On("SendDigest", mock.Anything, mock.Anything).Return("<msg-1>", nil).Once()

	var recorded *models.Delivery
	st.On("InsertDelivery", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recorded = args.Get(1).(*models.Delivery)
	}).Return(nil).Once()

	first := svc.SendDigests(context.Background())
	require.Equal(t, 1, first.EmailsSent)
	require.NotNil(t, recorded)

	// Run 2: the delivery from run 1 is now history.
	st.On("ListDeliveries", mock.Anything, "s1").Return([]models.Delivery{*recorded}, nil).Once()

	second := svc.SendDigests(context.Background())

	assert.True(t, second.Success)
	assert.Equal(t, 0, second.EmailsSent)
	sender.AssertNumberOfCalls(t, "SendDigest", 1)
	st.AssertNumberOfCalls(t, "InsertDelivery", 1)
}

func TestService_SendDigests_MissingEmailRecordedAndSkipped(t *testing.T) {
	svc, st, _, _, sender := newTestService()

	st.On("ListActiveSubscriptions", mock.Anything).Return([]models.Subscription{
		activeSub("s1", "topic-1"),
	}, nil)
	st.On("GetUserEmail", mock.Anything, "user-s1").Return("", nil)

	result := svc.SendDigests(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.EmailsSent)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "no email found for subscription s1")
	sender.AssertNotCalled(t, "SendDigest", mock.Anything, mock.Anything)
}

func TestService_SendDigests_SendFailureLeavesIdeasEligible(t *testing.T) {
	svc, st, _, _, sender := newTestService()

	sub := activeSub("s1", "topic-1")
	st.On("ListActiveSubscriptions", mock.Anything).Return([]models.Subscription{sub}, nil)
	st.On("GetUserEmail", mock.Anything, "user-s1").Return("s1@example.com", nil)
	st.On("ListDeliveries", mock.Anything, "s1").Return([]models.Delivery{}, nil)
	st.On("ListIdeasByTopics", mock.Anything, []string{"topic-1"}, 10).Return(ideasByID("i1"), nil)
	st.On("ListTopicsByIDs", mock.Anything, []string{"topic-1"}).Return(devtoolsTopics, nil)

	sender.On("SendDigest", mock.Anything, mock.Anything).Return("", assert.AnError)

	result := svc.SendDigests(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.EmailsSent)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "failed to send email for subscription s1")
	// No delivery row means i1 stays eligible for the next run.
	st.AssertNotCalled(t, "InsertDelivery", mock.Anything, mock.Anything)
}

func TestService_SendDigests_FailureIsolatedPerSubscription(t *testing.T) {
	svc, st, _, _, sender := newTestService()

	broken := activeSub("broken", "topic-1")
	healthy := activeSub("healthy", "topic-1")
	st.On("ListActiveSubscriptions", mock.Anything).Return([]models.Subscription{broken, healthy}, nil)

	st.On("GetUserEmail", mock.Anything, "user-broken").Return("", assert.AnError)
	st.On("GetUserEmail", mock.Anything, "user-healthy").Return("h@example.com", nil)
	st.On("ListDeliveries", mock.Anything, "healthy").Return([]models.Delivery{}, nil)
	st.On("ListIdeasByTopics", mock.Anything, []string{"topic-1"}, 10).Return(ideasByID("i1"), nil)
	st.On("ListTopicsByIDs", mock.Anything, []string{"topic-1"}).Return(devtoolsTopics, nil)

	sender.On("SendDigest", mock.Anything, mock.Anything).Return("<msg>", nil)
	st.On("InsertDelivery", mock.Anything, mock.Anything).Return(nil)

	result := svc.SendDigests(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.SubscriptionsProcessed)
	assert.Equal(t, 1, result.EmailsSent)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broken")
}

func TestService_SendDigests_ListFailureAborts(t *testing.T) {
	svc, st, _, _, _ := newTestService()

	st.On("ListActiveSubscriptions", mock.Anything).Return(nil, assert.AnError)

	result := svc.SendDigests(context.Background())

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}
