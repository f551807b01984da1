package vote

import (
	"github.com/SlpAus/style-off-backend/internal/design"
	"github.com/SlpAus/style-off-backend/internal/session"
)

// RoundResult 是单个回合的计票结果。
type RoundResult struct {
	// WinnerSubmissionID 是获胜作品的主键；回合没有作品时为0
	WinnerSubmissionID uint
	// WinnerUserID 是获胜作品设计者的用户UUID
	WinnerUserID string
	// VoteCounts 是每份作品获得的票数
	VoteCounts map[uint]int
}

// VotesFor 统计一份作品获得的票数。
// 投票以角色为单位：选择A意味着把票投给目标角色为A的作品，平票(tie)不计入任何作品。
func VotesFor(submission *design.Submission, votes []Vote) int {
	count := 0
	for _, v := range votes {
		if string(v.Choice) == string(submission.TargetRole) {
			count++
		}
	}
	return count
}

// ResolveRound 判定一个回合的获胜作品。
// 裁决顺序：票数最高者胜；票数相同时造型分高者胜；
// 两者都相同时取主键最小的作品——这是一条确定性的兜底规则，
// 与作品的插入顺序一致，保证重复计票结果可复现。
func ResolveRound(submissions []design.Submission, votes []Vote) *RoundResult {
	result := &RoundResult{
		VoteCounts: make(map[uint]int, len(submissions)),
	}
	if len(submissions) == 0 {
		return result
	}

	for i := range submissions {
		result.VoteCounts[submissions[i].ID] = VotesFor(&submissions[i], votes)
	}

	var winner *design.Submission
	for i := range submissions {
		candidate := &submissions[i]
		if winner == nil {
			winner = candidate
			continue
		}
		switch {
		case result.VoteCounts[candidate.ID] > result.VoteCounts[winner.ID]:
			winner = candidate
		case result.VoteCounts[candidate.ID] == result.VoteCounts[winner.ID]:
			// 票数相同，比较造型分
			if candidate.StylePoints > winner.StylePoints {
				winner = candidate
			} else if candidate.StylePoints == winner.StylePoints && candidate.ID < winner.ID {
				winner = candidate
			}
		}
	}

	result.WinnerSubmissionID = winner.ID
	result.WinnerUserID = winner.DesignerUserID
	return result
}

// SessionWinner 判定整场会话的获胜参与者：累计得分最高者胜。
// 会话层面的平局同样需要确定性规则：角色字母序靠前者（A）胜。
// 没有参与者时返回nil。
func SessionWinner(participants []session.Participant) *session.Participant {
	var winner *session.Participant
	for i := range participants {
		candidate := &participants[i]
		if winner == nil {
			winner = candidate
			continue
		}
		if candidate.CumulativeScore > winner.CumulativeScore {
			winner = candidate
		} else if candidate.CumulativeScore == winner.CumulativeScore && candidate.Role < winner.Role {
			winner = candidate
		}
	}
	return winner
}
