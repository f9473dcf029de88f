// Package policymock holds hand-maintained gomock doubles for the
// policy.Predictor and policy.Candidates collaborator interfaces, in the
// shape mockgen would generate (`mockgen -source=policy.go`). Checked in
// rather than generated on the fly since this module never invokes `go
// generate`.
package policymock

import (
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/orizon-lang/heapkeeper/internal/policy"
)

// MockPredictor is a mock of the policy.Predictor interface.
type MockPredictor struct {
	ctrl     *gomock.Controller
	recorder *MockPredictorRecorder
}

type MockPredictorRecorder struct{ mock *MockPredictor }

func NewMockPredictor(ctrl *gomock.Controller) *MockPredictor {
	m := &MockPredictor{ctrl: ctrl}
	m.recorder = &MockPredictorRecorder{m}

	return m
}

func (m *MockPredictor) EXPECT() *MockPredictorRecorder { return m.recorder }

func (m *MockPredictor) PredictCardMergeTimeMs(numCards int) float64 {
	ret := m.ctrl.Call(m, "PredictCardMergeTimeMs", numCards)
	return ret[0].(float64)
}

func (r *MockPredictorRecorder) PredictCardMergeTimeMs(numCards interface{}) *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "PredictCardMergeTimeMs",
		reflect.TypeOf((*MockPredictor)(nil).PredictCardMergeTimeMs), numCards)
}

func (m *MockPredictor) PredictCardScanTimeMs(numCards int) float64 {
	ret := m.ctrl.Call(m, "PredictCardScanTimeMs", numCards)
	return ret[0].(float64)
}

func (r *MockPredictorRecorder) PredictCardScanTimeMs(numCards interface{}) *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "PredictCardScanTimeMs",
		reflect.TypeOf((*MockPredictor)(nil).PredictCardScanTimeMs), numCards)
}

func (m *MockPredictor) PredictRegionTotalTimeMs(region policy.Region) float64 {
	ret := m.ctrl.Call(m, "PredictRegionTotalTimeMs", region)
	return ret[0].(float64)
}

func (r *MockPredictorRecorder) PredictRegionTotalTimeMs(region interface{}) *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "PredictRegionTotalTimeMs",
		reflect.TypeOf((*MockPredictor)(nil).PredictRegionTotalTimeMs), region)
}

func (m *MockPredictor) PredictAllocRateMs() float64 {
	ret := m.ctrl.Call(m, "PredictAllocRateMs")
	return ret[0].(float64)
}

func (r *MockPredictorRecorder) PredictAllocRateMs() *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "PredictAllocRateMs",
		reflect.TypeOf((*MockPredictor)(nil).PredictAllocRateMs))
}

func (m *MockPredictor) PredictDirtiedCardsRateMs() float64 {
	ret := m.ctrl.Call(m, "PredictDirtiedCardsRateMs")
	return ret[0].(float64)
}

func (r *MockPredictorRecorder) PredictDirtiedCardsRateMs() *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "PredictDirtiedCardsRateMs",
		reflect.TypeOf((*MockPredictor)(nil).PredictDirtiedCardsRateMs))
}

func (m *MockPredictor) PredictConcurrentRefineRateMs() float64 {
	ret := m.ctrl.Call(m, "PredictConcurrentRefineRateMs")
	return ret[0].(float64)
}

func (r *MockPredictorRecorder) PredictConcurrentRefineRateMs() *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "PredictConcurrentRefineRateMs",
		reflect.TypeOf((*MockPredictor)(nil).PredictConcurrentRefineRateMs))
}

func (m *MockPredictor) TryGetAvailableBytesEstimate() (uint64, bool) {
	ret := m.ctrl.Call(m, "TryGetAvailableBytesEstimate")
	return ret[0].(uint64), ret[1].(bool)
}

func (r *MockPredictorRecorder) TryGetAvailableBytesEstimate() *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "TryGetAvailableBytesEstimate",
		reflect.TypeOf((*MockPredictor)(nil).TryGetAvailableBytesEstimate))
}

func (m *MockPredictor) PredictTimeUntilNextGCMs() float64 {
	ret := m.ctrl.Call(m, "PredictTimeUntilNextGCMs")
	return ret[0].(float64)
}

func (r *MockPredictorRecorder) PredictTimeUntilNextGCMs() *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "PredictTimeUntilNextGCMs",
		reflect.TypeOf((*MockPredictor)(nil).PredictTimeUntilNextGCMs))
}
