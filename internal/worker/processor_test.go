package worker

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"SmsRelay/internal/model"
	"SmsRelay/pkg/gateway"
	"SmsRelay/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	// 库名取测试名哈希，子测试名里的空格和标点不会破坏 DSN
	dsn := fmt.Sprintf("file:%x?mode=memory&cache=shared", sha256.Sum256([]byte(t.Name())))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&model.Message{}, &model.QueueJob{}, &model.DlrEvent{}))
	return db
}

func newTestProcessor(db *gorm.DB, mock *gateway.MockSender) *Processor {
	return NewProcessor(db, func() (gateway.Sender, error) {
		return mock, nil
	})
}

// seedJob 写入一条 queued 消息和对应的到期任务
func seedJob(t *testing.T, db *gorm.DB, text string) (*model.Message, *model.QueueJob) {
	t.Helper()

	msg := &model.Message{
		Name:      "SMS +34600111222",
		Sender:    "ACME",
		Receiver:  "+34600111222",
		Text:      text,
		MsgID:     "local-uuid",
		NumParts:  1,
		State:     model.MessageStateQueued,
		DedupHash: strings.Repeat("a", 64),
	}
	require.NoError(t, db.Create(msg).Error)

	job := &model.QueueJob{
		Name:         "SMS to +34600111222: " + msg.Name,
		MessageID:    msg.ID,
		State:        model.QueueJobStatePending,
		MaxRetries:   3,
		DelaySeconds: 60,
		NextTryAt:    time.Now().Add(-time.Minute),
		Priority:     10,
	}
	require.NoError(t, db.Create(job).Error)

	return msg, job
}

func reloadJob(t *testing.T, db *gorm.DB, id int64) *model.QueueJob {
	t.Helper()
	var job model.QueueJob
	require.NoError(t, db.First(&job, id).Error)
	return &job
}

func reloadMessage(t *testing.T, db *gorm.DB, id int64) *model.Message {
	t.Helper()
	var msg model.Message
	require.NoError(t, db.First(&msg, id).Error)
	return &msg
}

func TestProcessQueue_Success(t *testing.T) {
	db := setupDB(t)
	mock := gateway.NewMockSender()
	mock.Results = []gateway.Result{{Success: true, MsgID: "prov-msg-1", NumParts: 2}}
	p := newTestProcessor(db, mock)

	msg, job := seedJob(t, db, "hola")

	require.NoError(t, p.ProcessQueue(context.Background(), 10))

	gotMsg := reloadMessage(t, db, msg.ID)
	assert.Equal(t, model.MessageStateAPISent, gotMsg.State)
	assert.Equal(t, "prov-msg-1", gotMsg.MsgID) // 供应商 id 覆盖本地 uuid
	assert.Equal(t, 2, gotMsg.NumParts)

	gotJob := reloadJob(t, db, job.ID)
	assert.Equal(t, model.QueueJobStateSuccess, gotJob.State)

	require.Equal(t, 1, mock.CallCount())
	assert.Equal(t, msg.ID, mock.Calls[0].MessageID)
	assert.Equal(t, "+34600111222", mock.Calls[0].Receiver)
}

func TestProcessQueue_SuccessOverwritesMsgIDUnconditionally(t *testing.T) {
	db := setupDB(t)
	mock := gateway.NewMockSender()
	// 受理响应体读不出 msgId 时本地 uuid 也被覆盖
	mock.Results = []gateway.Result{{Success: true, MsgID: "", NumParts: 1}}
	p := newTestProcessor(db, mock)

	msg, _ := seedJob(t, db, "hola")

	require.NoError(t, p.ProcessQueue(context.Background(), 10))

	gotMsg := reloadMessage(t, db, msg.ID)
	assert.Equal(t, model.MessageStateAPISent, gotMsg.State)
	assert.Empty(t, gotMsg.MsgID)
}

func TestProcessQueue_FailureSchedulesLinearBackoff(t *testing.T) {
	db := setupDB(t)
	mock := gateway.NewMockSender()
	mock.Results = []gateway.Result{{Success: false, ErrorCode: 420, ErrorMessage: "rejected"}}
	p := newTestProcessor(db, mock)

	msg, job := seedJob(t, db, "hola")

	before := time.Now()
	require.NoError(t, p.ProcessQueue(context.Background(), 10))

	gotJob := reloadJob(t, db, job.ID)
	assert.Equal(t, model.QueueJobStatePending, gotJob.State)
	assert.Equal(t, 1, gotJob.RetryCount)
	assert.Contains(t, gotJob.ErrorMessage, "code 420")
	assert.Nil(t, gotJob.StartedAt)

	// 第一次重试：delay_seconds * 1
	expected := before.Add(60 * time.Second)
	assert.WithinDuration(t, expected, gotJob.NextTryAt, 5*time.Second)

	// 重试期间消息保持 sending
	gotMsg := reloadMessage(t, db, msg.ID)
	assert.Equal(t, model.MessageStateSending, gotMsg.State)
}

func TestProcessQueue_BackoffGrowsWithRetryCount(t *testing.T) {
	db := setupDB(t)
	mock := gateway.NewMockSender()
	mock.Results = []gateway.Result{{Success: false, ErrorCode: 420, ErrorMessage: "rejected"}}
	p := newTestProcessor(db, mock)

	_, job := seedJob(t, db, "hola")
	require.NoError(t, db.Model(job).Update("retry_count", 1).Error)

	before := time.Now()
	require.NoError(t, p.ProcessQueue(context.Background(), 10))

	gotJob := reloadJob(t, db, job.ID)
	assert.Equal(t, 2, gotJob.RetryCount)

	// 第二次重试：delay_seconds * 2
	expected := before.Add(120 * time.Second)
	assert.WithinDuration(t, expected, gotJob.NextTryAt, 5*time.Second)
}

func TestProcessQueue_LastRetrySlotStillSchedules(t *testing.T) {
	db := setupDB(t)
	mock := gateway.NewMockSender()
	mock.Results = []gateway.Result{{Success: false, ErrorCode: 420, ErrorMessage: "rejected"}}
	p := newTestProcessor(db, mock)

	msg, job := seedJob(t, db, "hola")
	// 还差一次就到 max_retries，本次失败仍要排重试
	require.NoError(t, db.Model(job).Updates(map[string]interface{}{
		"max_retries": 5,
		"retry_count": 4,
	}).Error)

	require.NoError(t, p.ProcessQueue(context.Background(), 10))

	gotJob := reloadJob(t, db, job.ID)
	assert.Equal(t, model.QueueJobStatePending, gotJob.State)
	assert.Equal(t, 5, gotJob.RetryCount)
	assert.Equal(t, model.MessageStateSending, reloadMessage(t, db, msg.ID).State)
}

func TestProcessQueue_ExhaustedRetriesFailPermanently(t *testing.T) {
	db := setupDB(t)
	mock := gateway.NewMockSender()
	mock.Results = []gateway.Result{{Success: false, ErrorCode: 104, ErrorMessage: "invalid receiver"}}
	p := newTestProcessor(db, mock)

	msg, job := seedJob(t, db, "hola")
	// 重试计数已追平 max_retries，下一次失败即终态
	require.NoError(t, db.Model(job).Update("retry_count", 3).Error)

	require.NoError(t, p.ProcessQueue(context.Background(), 10))

	gotJob := reloadJob(t, db, job.ID)
	assert.Equal(t, model.QueueJobStateFailed, gotJob.State)
	assert.Equal(t, 3, gotJob.RetryCount)
	assert.Contains(t, gotJob.ErrorMessage, "code 104")

	gotMsg := reloadMessage(t, db, msg.ID)
	assert.Equal(t, model.MessageStateAPIFailed, gotMsg.State)
}

func TestProcessQueue_GatewayUnavailableSkipsRun(t *testing.T) {
	db := setupDB(t)
	p := NewProcessor(db, func() (gateway.Sender, error) {
		return nil, errors.New("gateway not configured")
	})

	_, job := seedJob(t, db, "hola")

	err := p.ProcessQueue(context.Background(), 10)
	require.Error(t, err)

	// 任务原样保留，等下一轮
	gotJob := reloadJob(t, db, job.ID)
	assert.Equal(t, model.QueueJobStatePending, gotJob.State)
	assert.Equal(t, 0, gotJob.RetryCount)
}

func TestProcessQueue_SkipsFutureAndClaimedJobs(t *testing.T) {
	db := setupDB(t)
	mock := gateway.NewMockSender()
	p := newTestProcessor(db, mock)

	_, future := seedJob(t, db, "future")
	require.NoError(t, db.Model(future).Update("next_try_at", time.Now().Add(time.Hour)).Error)

	now := time.Now()
	_, claimed := seedJob(t, db, "claimed")
	require.NoError(t, db.Model(claimed).Updates(map[string]interface{}{
		"state":      model.QueueJobStateInProgress,
		"started_at": now,
	}).Error)

	require.NoError(t, p.ProcessQueue(context.Background(), 10))

	assert.Zero(t, mock.CallCount())
	assert.Equal(t, model.QueueJobStatePending, reloadJob(t, db, future.ID).State)
	assert.Equal(t, model.QueueJobStateInProgress, reloadJob(t, db, claimed.ID).State)
}

func TestProcessQueue_HonorsBatchLimitAndPriority(t *testing.T) {
	db := setupDB(t)
	mock := gateway.NewMockSender()
	p := newTestProcessor(db, mock)

	_, low := seedJob(t, db, "low priority")
	require.NoError(t, db.Model(low).Update("priority", 1).Error)
	highMsg, _ := seedJob(t, db, "high priority")

	require.NoError(t, p.ProcessQueue(context.Background(), 1))

	// 只处理了优先级高的那条
	require.Equal(t, 1, mock.CallCount())
	assert.Equal(t, highMsg.ID, mock.Calls[0].MessageID)
	assert.Equal(t, model.QueueJobStatePending, reloadJob(t, db, low.ID).State)
}

func TestReclaimStale(t *testing.T) {
	db := setupDB(t)
	p := newTestProcessor(db, gateway.NewMockSender())

	staleStart := time.Now().Add(-2 * time.Hour)
	_, stale := seedJob(t, db, "stale")
	require.NoError(t, db.Model(stale).Updates(map[string]interface{}{
		"state":      model.QueueJobStateInProgress,
		"started_at": staleStart,
	}).Error)

	freshStart := time.Now()
	_, fresh := seedJob(t, db, "fresh")
	require.NoError(t, db.Model(fresh).Updates(map[string]interface{}{
		"state":      model.QueueJobStateInProgress,
		"started_at": freshStart,
	}).Error)

	count, err := p.ReclaimStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	gotStale := reloadJob(t, db, stale.ID)
	assert.Equal(t, model.QueueJobStatePending, gotStale.State)
	assert.Nil(t, gotStale.StartedAt)

	assert.Equal(t, model.QueueJobStateInProgress, reloadJob(t, db, fresh.ID).State)
}
