package game

import (
	"time"

	"github.com/SlpAus/style-off-backend/internal/design"
	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/session"
	"gorm.io/gorm"
)

// Phase 是回合内的阶段，由服务端时钟从回合开始时间推导，
// 客户端计时器只是展示用途。
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseStyling   Phase = "styling"
	PhaseVoting    Phase = "voting"
	PhaseResults   Phase = "results"
	PhaseCompleted Phase = "completed"
)

// SessionView 是get_session返回的完整快照。
type SessionView struct {
	Session      *session.Session      `json:"session"`
	Participants []session.Participant `json:"participants"`
	Rounds       []session.Round       `json:"rounds"`
	// CurrentPhase 由服务端时钟推导
	CurrentPhase Phase `json:"current_phase"`
	// PhaseEndsAt 是当前阶段的截止时间，终态或等待中为空
	PhaseEndsAt *time.Time `json:"phase_ends_at,omitempty"`
	// Designs 仅在会话completed后包含双方全部设计
	Designs []design.Submission `json:"designs,omitempty"`
	// OwnDesigns 始终包含调用者自己的设计
	OwnDesigns []design.Submission `json:"own_designs"`
}

// GetSession 返回会话的完整快照。双方的设计只在会话completed后
// 对外可见，调用者自己的设计任何时候都返回。
func GetSession(sessionID, callerID string) (*SessionView, error) {
	view := &SessionView{}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		s, err := session.FindBySessionID(tx, sessionID)
		if err != nil {
			return err
		}
		view.Session = s

		view.Participants, err = session.ParticipantsOf(tx, sessionID)
		if err != nil {
			return err
		}
		view.Rounds, err = session.RoundsOf(tx, sessionID)
		if err != nil {
			return err
		}

		view.CurrentPhase, view.PhaseEndsAt = derivePhase(s, view.Rounds, time.Now())

		if s.Status == session.StatusCompleted {
			view.Designs, err = design.ForSession(tx, sessionID)
			if err != nil {
				return err
			}
		}
		view.OwnDesigns, err = design.ForSessionByUser(tx, sessionID, callerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if view.OwnDesigns == nil {
		view.OwnDesigns = []design.Submission{}
	}
	return view, nil
}

// derivePhase 从会话状态和开放回合的开始时间推导当前阶段。
func derivePhase(s *session.Session, rounds []session.Round, now time.Time) (Phase, *time.Time) {
	switch s.Status {
	case session.StatusWaiting:
		return PhaseWaiting, nil
	case session.StatusCompleted, session.StatusTimeout:
		return PhaseCompleted, nil
	}

	var open *session.Round
	for i := range rounds {
		if rounds[i].IsOpen() {
			open = &rounds[i]
			break
		}
	}
	if open == nil {
		return PhaseResults, nil
	}

	stylingEnd := open.StartedAt.Add(time.Duration(open.TimeLimitSeconds) * time.Second)
	votingEnd := stylingEnd.Add(time.Duration(gameCfg.VotingSeconds) * time.Second)
	resultsEnd := votingEnd.Add(time.Duration(gameCfg.ResultsPauseSeconds) * time.Second)

	switch {
	case now.Before(stylingEnd):
		return PhaseStyling, &stylingEnd
	case now.Before(votingEnd):
		return PhaseVoting, &votingEnd
	default:
		return PhaseResults, &resultsEnd
	}
}

// roundDeadline 返回回合的最终截止时间，调度器据此判断是否该推进。
func roundDeadline(r *session.Round) time.Time {
	total := time.Duration(r.TimeLimitSeconds+gameCfg.VotingSeconds+gameCfg.ResultsPauseSeconds) * time.Second
	return r.StartedAt.Add(total)
}
