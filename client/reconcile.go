package client

import (
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"arenasync/protocol"
)

const defaultAnimation = "idle"

// Presenter 表现层（渲染 / 动画）接收远端玩家通知的边界
type Presenter interface {
	PlayerAdded(id string, view RemotePlayerView)
	PlayerChanged(id string, fields protocol.PlayerFields)
	AnimationChanged(id string, from, to string)
	PlayerRemoved(id string)
}

// RemotePlayerView 远端玩家最近一次收到的权威值；渲染值由表现层自行插值
type RemotePlayerView struct {
	SessionID       string
	TargetPosition  mgl64.Vec3
	TargetRotationY float64
	Animation       string
	IsJumping       bool
	UpdatedAt       time.Time
}

// Reconciler 本地协调层：屏蔽本地玩家的回声，其余事件转发给表现层。
// 只有 Reconciler 修改 RemotePlayerView，外部读取拿到的是副本
type Reconciler struct {
	localID   func() string
	presenter Presenter
	log       *zap.SugaredLogger

	mu    sync.RWMutex
	views map[string]*RemotePlayerView
}

// NewReconciler localID 返回本地会话标识（通常为 Session.SessionID）
func NewReconciler(localID func() string, presenter Presenter, log *zap.SugaredLogger) *Reconciler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reconciler{
		localID:   localID,
		presenter: presenter,
		log:       log,
		views:     make(map[string]*RemotePlayerView),
	}
}

func (r *Reconciler) isLocal(id string) bool {
	local := r.localID()
	return local != "" && id == local
}

// HandleAdd 为远端玩家建立视图；重复 add 记录日志后跳过
func (r *Reconciler) HandleAdd(id string, fields protocol.PlayerFields) {
	if r.isLocal(id) {
		return
	}
	r.mu.Lock()
	if _, ok := r.views[id]; ok {
		r.mu.Unlock()
		r.log.Debugw("remote player already tracked, skipping add", "session", id)
		return
	}
	view := &RemotePlayerView{
		SessionID:       id,
		TargetPosition:  mgl64.Vec3{valueOr(fields.X), valueOr(fields.Y), valueOr(fields.Z)},
		TargetRotationY: valueOr(fields.RotationY),
		Animation:       defaultAnimation,
		UpdatedAt:       time.Now(),
	}
	if fields.Animation != nil && *fields.Animation != "" {
		view.Animation = *fields.Animation
	}
	if fields.IsJumping != nil {
		view.IsJumping = *fields.IsJumping
	}
	r.views[id] = view
	cp := *view
	r.mu.Unlock()

	r.log.Debugw("remote player added", "session", id)
	if r.presenter != nil {
		r.presenter.PlayerAdded(id, cp)
	}
}

// HandleChange 只更新 payload 中出现的字段；动画字段单独通知
func (r *Reconciler) HandleChange(id string, fields protocol.PlayerFields) {
	if r.isLocal(id) {
		return
	}
	r.mu.Lock()
	view, ok := r.views[id]
	if !ok {
		r.mu.Unlock()
		r.log.Warnw("change for unknown remote player", "session", id)
		return
	}
	if fields.X != nil {
		view.TargetPosition[0] = *fields.X
	}
	if fields.Y != nil {
		view.TargetPosition[1] = *fields.Y
	}
	if fields.Z != nil {
		view.TargetPosition[2] = *fields.Z
	}
	if fields.RotationY != nil {
		view.TargetRotationY = *fields.RotationY
	}
	if fields.IsJumping != nil {
		view.IsJumping = *fields.IsJumping
	}
	var from, to string
	animated := fields.Animation != nil
	if animated {
		from, to = view.Animation, *fields.Animation
		view.Animation = to
	}
	view.UpdatedAt = time.Now()
	r.mu.Unlock()

	if r.presenter == nil {
		return
	}
	transform := fields
	transform.Animation = nil
	if !transform.Empty() {
		r.presenter.PlayerChanged(id, transform)
	}
	if animated {
		r.presenter.AnimationChanged(id, from, to)
	}
}

// HandleRemove 删除视图并通知表现层
func (r *Reconciler) HandleRemove(id string) {
	if r.isLocal(id) {
		return
	}
	r.mu.Lock()
	_, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()
	if !ok {
		r.log.Debugw("remove for untracked remote player", "session", id)
		return
	}
	r.log.Debugw("remote player removed", "session", id)
	if r.presenter != nil {
		r.presenter.PlayerRemoved(id)
	}
}

// HandleFullState 以 request-full-state 的应答为准：补齐缺失玩家、刷新目标值、移除已不存在的玩家
func (r *Reconciler) HandleFullState(full protocol.FullState) {
	ids := make([]string, 0, len(full))
	for id := range full {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := full[id]
		fields := protocol.PlayerFields{X: &e.X, Y: &e.Y, Z: &e.Z, RotationY: &e.RotationY}
		if e.Animation != "" {
			fields.Animation = &e.Animation
		}
		if r.Tracked(id) {
			if fields.Animation != nil {
				if v, _ := r.View(id); v.Animation == e.Animation {
					fields.Animation = nil
				}
			}
			r.HandleChange(id, fields)
		} else {
			r.HandleAdd(id, fields)
		}
	}
	for _, v := range r.Views() {
		if _, ok := full[v.SessionID]; !ok {
			r.HandleRemove(v.SessionID)
		}
	}
}

// Reset 断开连接时清空全部远端视图
func (r *Reconciler) Reset() {
	for _, v := range r.Views() {
		r.HandleRemove(v.SessionID)
	}
}

func (r *Reconciler) Tracked(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.views[id]
	return ok
}

func (r *Reconciler) View(id string) (RemotePlayerView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[id]
	if !ok {
		return RemotePlayerView{}, false
	}
	return *v, true
}

// Views 所有远端视图的副本，按会话排序
func (r *Reconciler) Views() []RemotePlayerView {
	r.mu.RLock()
	out := make([]RemotePlayerView, 0, len(r.views))
	for _, v := range r.views {
		out = append(out, *v)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// Handlers 供 Session.Attach 使用；onError 可为 nil
func (r *Reconciler) Handlers(onError func(error)) Handlers {
	return Handlers{
		OnAdd:       r.HandleAdd,
		OnChange:    r.HandleChange,
		OnRemove:    r.HandleRemove,
		OnFullState: r.HandleFullState,
		OnError:     onError,
		OnDisconnect: func(graceful bool, code int) {
			r.Reset()
		},
	}
}

func valueOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
