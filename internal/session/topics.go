package session

// roundTopics 是回合主题的固定轮换表。
// 主题数量多于默认回合数，保证同一场会话内不重复。
var roundTopics = []string{
	"复古学院风",
	"盛夏音乐节",
	"雨夜霓虹",
	"晨间通勤",
	"星际舞会",
	"山系露营",
	"新年庙会",
	"海滨假日",
}

// TopicForRound 返回指定回合序号(1-based)对应的主题。
func TopicForRound(roundNo int) string {
	if roundNo < 1 {
		roundNo = 1
	}
	return roundTopics[(roundNo-1)%len(roundTopics)]
}
