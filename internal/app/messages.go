// internal/app/messages.go
package app

import (
	"fmt"
	"strings"

	"github.com/Meru-dog/study-group-bot/internal/domain/attendance"
)

func declarationText(meetURL string) string {
	return fmt.Sprintf(
		"<!channel> 【本日 勉強会】参加宣言（締切15:00）\n"+
			"本日 17:00–19:00 勉強会（渋谷＋Meet）です。\n"+
			"15:00までにこの投稿にリアクションで参加宣言してください：\n"+
			"✅ 対面（渋谷）\n"+
			"💻 オンライン（Meet）\n"+
			"💤 欠席\n"+
			"発表したい人は 🎤 を追加で押してください（先着2名／取り消しは🎤を外す）\n"+
			"発表者はスレッドに `テーマ：〇〇` と返信してください（後で変更OK）\n"+
			"Meet：%s",
		meetURL,
	)
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "なし"
	}
	return strings.Join(names, ", ")
}

func speakerLines(records []attendance.Record) string {
	var lines []string
	for _, rec := range records {
		if !rec.Speaker {
			continue
		}
		topic := rec.Topic
		if topic == "" {
			topic = "未入力"
		}
		lines = append(lines, fmt.Sprintf("- %s（%s） テーマ: %s", rec.Participant, rec.Status, topic))
	}
	if len(lines) == 0 {
		return "- なし"
	}
	return strings.Join(lines, "\n")
}

func summaryText(records []attendance.Record, meetURL string) string {
	var inPerson, remote, absent []string
	for _, rec := range records {
		switch rec.Status {
		case attendance.StatusInPerson:
			inPerson = append(inPerson, rec.Participant)
		case attendance.StatusRemote:
			remote = append(remote, rec.Participant)
		case attendance.StatusAbsent:
			absent = append(absent, rec.Participant)
		}
	}
	return fmt.Sprintf(
		"【一次確定サマリ 15:00】\n対面: %s\nオンライン: %s\n欠席: %s\n発表者:\n%s\nMeet: %s",
		joinOrNone(inPerson),
		joinOrNone(remote),
		joinOrNone(absent),
		speakerLines(records),
		meetURL,
	)
}

func startText(records []attendance.Record, meetURL string) string {
	return fmt.Sprintf(
		"<!channel> 勉強会を開始します！\nMeet: %s\n本日の発表者:\n%s",
		meetURL,
		speakerLines(records),
	)
}
