package reveal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SlpAus/style-off-backend/internal/broadcast"
	"github.com/SlpAus/style-off-backend/internal/design"
	"github.com/SlpAus/style-off-backend/internal/platform/config"
	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/internal/vote"
	"github.com/SlpAus/style-off-backend/pkg/kvstore"
)

// ErrSessionNotFinished 表示会话尚未结束，揭晓结果还不可用
var ErrSessionNotFinished = errors.New("会话尚未结束，无法揭晓")

// Service 是揭晓汇总服务。缓存、去重与数据源都通过构造函数注入，
// 缓存条目整体序列化存储，命中时原样返回。
type Service struct {
	cfg      config.RevealConfig
	cache    kvstore.Store
	inflight *kvstore.InflightTracker
	source   DataSource
}

// NewService 构建揭晓服务。inflight的最大占用时长取轮询预算的两倍，
// 持有者崩溃后其它请求最终能接管计算。
func NewService(cfg config.RevealConfig, cache kvstore.Store, source DataSource) *Service {
	maxAge := 2 * time.Duration(cfg.InflightWaitSeconds) * time.Second
	return &Service{
		cfg:      cfg,
		cache:    cache,
		inflight: kvstore.NewInflightTracker(maxAge),
		source:   source,
	}
}

// cacheKey 把会话ID与查询选项编码进缓存键，不同选项互不污染。
func cacheKey(sessionID string, opts Options) string {
	return fmt.Sprintf("reveal:%s:r%d:a%t", sessionID, opts.RoundNo, opts.IncludeAnalytics)
}

// GetReveals 返回一场已结束会话的揭晓快照。
// 缓存命中时直接返回缓存的字节；未命中时只有一个请求真正计算，
// 其余请求轮询等待结果，等待超时后放开限制自行计算（宁可重复计算，
// 不让调用者因他人的故障而失败）。
func (s *Service) GetReveals(sessionID string, opts Options) (*Result, error) {
	key := cacheKey(sessionID, opts)

	// 强制刷新只跳过缓存读取，不跳过计算权的争夺：
	// 并发的强制刷新同样只触发一次数据源加载
	if !opts.ForceRefresh {
		if entry, ok := s.cache.Get(key); ok {
			return resultFromEntry(entry, true), nil
		}
	}

	// 争夺计算权
	if s.inflight.Begin(key) {
		defer s.inflight.End(key)
		return s.computeAndStore(key, sessionID, opts)
	}

	// 有人正在计算，轮询等待其产物写入缓存。
	// 强制刷新的等待者不读计算完成前的旧条目，只接收胜出者的新产物。
	deadline := time.Now().Add(time.Duration(s.cfg.InflightWaitSeconds) * time.Second)
	interval := time.Duration(s.cfg.InflightPollMillis) * time.Millisecond
	for time.Now().Before(deadline) {
		time.Sleep(interval)
		if !s.inflight.IsInflight(key) {
			if entry, ok := s.cache.Get(key); ok {
				return resultFromEntry(entry, true), nil
			}
			break // 计算者已结束却没有产物，别再等了
		}
		if !opts.ForceRefresh {
			if entry, ok := s.cache.Get(key); ok {
				return resultFromEntry(entry, true), nil
			}
		}
	}

	// 等待超时：自行计算兜底
	return s.computeAndStore(key, sessionID, opts)
}

// computeAndStore 从数据源重建快照并写入缓存。
func (s *Service) computeAndStore(key, sessionID string, opts Options) (*Result, error) {
	data, err := s.source.Load(sessionID)
	if err != nil {
		return nil, err
	}

	payload, err := buildPayload(data, opts)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化揭晓快照失败: %w", err)
	}

	entry := s.cache.Set(key, raw, time.Duration(s.cfg.CacheTTLSeconds)*time.Second)
	return resultFromEntry(entry, false), nil
}

// ProcessReveal 在会话结束后触发揭晓处理：首次调用打上处理标记、
// 重建缓存并广播REVEALS_READY；重复调用是幂等的，
// 直接走普通读路径返回缓存中的既有快照，不会重算也不会重复广播。
func (s *Service) ProcessReveal(sessionID string) (*Result, bool, error) {
	first, err := s.source.MarkProcessed(sessionID)
	if err != nil {
		return nil, false, err
	}

	baseOpts := Options{}
	if !first {
		result, err := s.GetReveals(sessionID, baseOpts)
		return result, true, err
	}

	// 首次处理：让两个基础变体的缓存回到新鲜状态。
	// 按回合过滤的变体无法枚举，交给TTL自然过期。
	s.cache.Delete(cacheKey(sessionID, baseOpts))
	s.cache.Delete(cacheKey(sessionID, Options{IncludeAnalytics: true}))

	result, err := s.computeAndStore(cacheKey(sessionID, baseOpts), sessionID, baseOpts)
	if err != nil {
		return nil, false, err
	}

	if action, err := broadcast.NewAction(broadcast.ActionRevealsReady, broadcast.RevealsReadyPayload{
		SessionID: sessionID,
		ETag:      result.ETag,
	}, "server"); err == nil {
		broadcast.PublishOrLog(database.Ctx, sessionID, action)
	}
	return result, false, nil
}

// BatchResult 是一次批量揭晓处理的统计。
type BatchResult struct {
	Requested int      `json:"requested"`
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// BatchReveal 并行处理最多limit个待揭晓的已结束会话。
// limit不合法或超出上限时按配置的批量上限截断。
func (s *Service) BatchReveal(limit int) (*BatchResult, error) {
	if limit <= 0 || limit > s.cfg.BatchLimit {
		limit = s.cfg.BatchLimit
	}

	ids, err := s.source.PendingSessions(limit)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Requested: limit, Processed: len(ids)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			_, _, err := s.ProcessReveal(sessionID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.FailedIDs = append(result.FailedIDs, sessionID)
				return
			}
			result.Succeeded++
		}(id)
	}
	wg.Wait()
	return result, nil
}

// Allow 对揭晓查询做固定窗口限流。
// 返回是否放行、窗口内的剩余额度以及窗口重置时间。
func (s *Service) Allow(callerID string) (bool, int, time.Time) {
	count, reset := s.cache.IncrementWithExpiry("ratelimit:reveal:"+callerID, time.Minute)
	remaining := s.cfg.RateLimitPerMinute - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(s.cfg.RateLimitPerMinute), remaining, reset
}

// CacheTTLSeconds 暴露缓存TTL，供HTTP层拼装Cache-Control头。
func (s *Service) CacheTTLSeconds() int {
	return s.cfg.CacheTTLSeconds
}

// resultFromEntry 把缓存条目转换为查询结果。
func resultFromEntry(entry *kvstore.Entry, fromCache bool) *Result {
	return &Result{
		Payload:   entry.Payload,
		ETag:      entry.ETag,
		FromCache: fromCache,
		ExpiresAt: entry.ExpiresAt,
	}
}

// buildPayload 从原始数据重建揭晓快照。只有终态会话可以揭晓。
func buildPayload(data *SourceData, opts Options) (*Payload, error) {
	if !data.Session.Status.Finished() {
		return nil, ErrSessionNotFinished
	}

	avatars := make(map[string]string, len(data.Participants))
	finalScores := make(map[string]int, len(data.Participants))
	for _, p := range data.Participants {
		avatars[p.UserID] = p.AvatarName
		finalScores[p.UserID] = p.CumulativeScore
	}

	payload := &Payload{
		SessionID:   data.Session.SessionID,
		Status:      string(data.Session.Status),
		GeneratedAt: time.Now(),
		FinalScores: finalScores,
		Rounds:      make([]RoundReveal, 0, len(data.Rounds)),
	}
	if winner := vote.SessionWinner(data.Participants); winner != nil {
		payload.SessionWinnerUserID = winner.UserID
	}

	subsByRound := make(map[uint][]design.Submission)
	for _, sub := range data.Submissions {
		subsByRound[sub.RoundID] = append(subsByRound[sub.RoundID], sub)
	}
	votesByRound := make(map[uint][]vote.Vote)
	for _, v := range data.Votes {
		votesByRound[v.RoundID] = append(votesByRound[v.RoundID], v)
	}

	for _, round := range data.Rounds {
		if opts.RoundNo != 0 && round.RoundNo != opts.RoundNo {
			continue
		}
		payload.Rounds = append(payload.Rounds, buildRoundReveal(&round, subsByRound[round.ID], votesByRound[round.ID], avatars))
	}

	if opts.IncludeAnalytics {
		payload.Analytics = buildAnalytics(data)
	}
	return payload, nil
}

// buildRoundReveal 汇总单个回合的作品、票数与获胜者。
func buildRoundReveal(round *session.Round, subs []design.Submission, votes []vote.Vote, avatars map[string]string) RoundReveal {
	reveal := RoundReveal{
		RoundNo:    round.RoundNo,
		Topic:      round.Topic,
		StartedAt:  round.StartedAt,
		EndedAt:    round.EndedAt,
		Designs:    make([]DesignReveal, 0, len(subs)),
		VoteCounts: make(map[string]int),
	}

	for _, sub := range subs {
		reveal.Designs = append(reveal.Designs, DesignReveal{
			DesignerUserID: sub.DesignerUserID,
			DesignerAvatar: avatars[sub.DesignerUserID],
			TargetRole:     string(sub.TargetRole),
			StyleChoices:   sub.StyleChoices,
			StylePoints:    sub.StylePoints,
			ImageURL:       sub.ImageURL,
			SubmittedAt:    sub.CreatedAt,
		})
	}

	for _, v := range votes {
		if v.Choice != "" {
			reveal.VoteCounts[string(v.Choice)]++
		}
	}

	if tally := vote.ResolveRound(subs, votes); tally.WinnerUserID != "" {
		reveal.WinnerUserID = tally.WinnerUserID
	}
	return reveal
}

// buildAnalytics 计算附加统计。
func buildAnalytics(data *SourceData) *Analytics {
	analytics := &Analytics{
		TotalDesigns:   len(data.Submissions),
		DesignsByRole:  make(map[string]int),
		ReactionCounts: make(map[string]int),
	}

	roundStart := make(map[uint]time.Time, len(data.Rounds))
	for _, r := range data.Rounds {
		roundStart[r.ID] = r.StartedAt
	}

	var totalLatency time.Duration
	var measured int
	for _, sub := range data.Submissions {
		analytics.DesignsByRole[string(sub.TargetRole)]++
		if start, ok := roundStart[sub.RoundID]; ok && sub.CreatedAt.After(start) {
			totalLatency += sub.CreatedAt.Sub(start)
			measured++
		}
	}
	if measured > 0 {
		analytics.AvgResponseSeconds = totalLatency.Seconds() / float64(measured)
	}

	for _, v := range data.Votes {
		if v.Reaction != "" {
			analytics.ReactionCounts[string(v.Reaction)]++
		}
	}
	return analytics
}
