// Package prompts builds the instructions sent to the model.
package prompts

import (
	"strings"

	"github.com/nellyGuo1225/NoWasteLifeV2/internal/models"
)

// BuildBreakdownPrompt asks for the task split into 3 to 7 subtasks as JSON.
func BuildBreakdownPrompt(task string) string {
	var b strings.Builder

	b.WriteString("你是一位擅長任務規劃的助理。請把下面的任務拆解成 3 到 7 個具體、可以立刻開始的子任務，")
	b.WriteString("依照執行順序排列，每個子任務都要小到能在一次專注時段內完成。\n\n")

	b.WriteString("任務：")
	b.WriteString(task)
	b.WriteString("\n\n")

	b.WriteString("只回傳 JSON，不要加入任何其他說明文字，格式如下：\n")
	b.WriteString("{\n")
	b.WriteString("  \"subtasks\": [\n")
	b.WriteString("    {\"title\": \"子任務標題\", \"description\": \"一句話說明要做什麼\"}\n")
	b.WriteString("  ]\n")
	b.WriteString("}\n")

	return b.String()
}

// BuildDiagnosisPrompt asks for a cause and remedies as JSON.
func BuildDiagnosisPrompt(tasks []models.CompletedTask) string {
	var b strings.Builder

	b.WriteString("你是一位溫和且務實的時間管理教練。以下是使用者最近完成的任務、完成後的感受，以及是否在期限內完成：\n\n")
	b.WriteString(SummarizeTasks(tasks))
	b.WriteString("\n\n")

	b.WriteString("請根據這些資料找出使用者最可能的拖延原因，並提出三到五個具體、容易執行的改善建議。\n")
	b.WriteString("只回傳 JSON，不要加入任何其他說明文字，格式如下：\n")
	b.WriteString("{\n")
	b.WriteString("  \"cause\": \"用一段話說明主要的拖延原因\",\n")
	b.WriteString("  \"solutions\": [\"建議一\", \"建議二\", \"建議三\"]\n")
	b.WriteString("}\n")

	return b.String()
}

// SummarizeTasks renders one line per task, joined by newlines.
func SummarizeTasks(tasks []models.CompletedTask) string {
	lines := make([]string, 0, len(tasks))
	for _, task := range tasks {
		lines = append(lines, TaskLine(task))
	}
	return strings.Join(lines, "\n")
}

// TaskLine renders a single completed task.
func TaskLine(task models.CompletedTask) string {
	var b strings.Builder
	b.WriteString("任務：")
	b.WriteString(task.Title)
	if task.Feeling != "" {
		b.WriteString("，完成感受：")
		b.WriteString(task.Feeling)
	}
	if task.HasDates() {
		if task.Late() {
			b.WriteString("（延遲完成）")
		} else {
			b.WriteString("（準時完成）")
		}
	}
	return b.String()
}
