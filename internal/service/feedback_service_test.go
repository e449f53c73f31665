package service

import (
	"context"
	"testing"

	"datapilot-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeRecordRepo 在内存中维护示例记录与反馈。
type fakeRecordRepo struct {
	records   map[string]*model.ExampleRecord // key: tenantID + "/" + exampleKey
	feedbacks []*model.Feedback
	ratings   map[string]int
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{
		records: make(map[string]*model.ExampleRecord),
		ratings: make(map[string]int),
	}
}

func (f *fakeRecordRepo) Create(record *model.ExampleRecord) error {
	f.records[record.TenantID+"/"+record.ID] = record
	return nil
}

func (f *fakeRecordRepo) FindByKey(tenantID, exampleKey string) (*model.ExampleRecord, error) {
	r, ok := f.records[tenantID+"/"+exampleKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r, nil
}

func (f *fakeRecordRepo) UpdateRating(tenantID, exampleKey string, rating int) error {
	f.ratings[exampleKey] = rating
	return nil
}

func (f *fakeRecordRepo) CreateFeedback(feedback *model.Feedback) error {
	f.feedbacks = append(f.feedbacks, feedback)
	return nil
}

func (f *fakeRecordRepo) DeleteByTenant(tenantID string) error { return nil }

func TestSubmitFeedbackUpdatesBothStores(t *testing.T) {
	recordRepo := newFakeRecordRepo()
	require.NoError(t, recordRepo.Create(&model.ExampleRecord{ID: "key-1", TenantID: "tenant-a"}))
	store := &fakeExampleStore{}
	svc := NewFeedbackService(recordRepo, store)

	err := svc.Submit(context.Background(), "tenant-a", FeedbackRequest{
		ExampleKey: "key-1",
		Rating:     1,
		Helpful:    true,
		Comment:    "查得很准",
	})
	require.NoError(t, err)

	require.Len(t, recordRepo.feedbacks, 1)
	assert.Equal(t, "查得很准", recordRepo.feedbacks[0].Comment)
	assert.Equal(t, 1, recordRepo.ratings["key-1"])
	assert.Equal(t, 1, store.ratings["key-1"])
}

func TestSubmitFeedbackEnforcesTenantOwnership(t *testing.T) {
	recordRepo := newFakeRecordRepo()
	require.NoError(t, recordRepo.Create(&model.ExampleRecord{ID: "key-1", TenantID: "tenant-a"}))
	svc := NewFeedbackService(recordRepo, &fakeExampleStore{})

	err := svc.Submit(context.Background(), "tenant-b", FeedbackRequest{ExampleKey: "key-1", Rating: 1})
	assert.ErrorIs(t, err, ErrExampleNotFound)
	assert.Empty(t, recordRepo.feedbacks)
}

func TestSubmitFeedbackRejectsOutOfRangeRating(t *testing.T) {
	svc := NewFeedbackService(newFakeRecordRepo(), &fakeExampleStore{})

	assert.Error(t, svc.Submit(context.Background(), "tenant-a", FeedbackRequest{ExampleKey: "key-1", Rating: -2}))
	assert.Error(t, svc.Submit(context.Background(), "tenant-a", FeedbackRequest{ExampleKey: "key-1", Rating: 6}))
}
