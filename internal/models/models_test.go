package models

import "testing"

func TestCompletedTaskLate(t *testing.T) {
	tests := []struct {
		name string
		task CompletedTask
		want bool
	}{
		{"after deadline", CompletedTask{Deadline: "2024-03-01", CompletedDate: "2024-03-02"}, true},
		{"on deadline", CompletedTask{Deadline: "2024-03-01", CompletedDate: "2024-03-01"}, false},
		{"early", CompletedTask{Deadline: "2024-03-01", CompletedDate: "2024-02-27"}, false},
		{"no deadline", CompletedTask{CompletedDate: "2024-03-02"}, false},
		{"no completion date", CompletedTask{Deadline: "2024-03-01"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Late(); got != tt.want {
				t.Errorf("Late() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompletedTaskHasDates(t *testing.T) {
	if (CompletedTask{Deadline: "2024-03-01"}).HasDates() {
		t.Error("a task without a completion date has no date pair")
	}
	if (CompletedTask{CompletedDate: "2024-03-01"}).HasDates() {
		t.Error("a task without a deadline has no date pair")
	}
	if !(CompletedTask{Deadline: "2024-03-01", CompletedDate: "2024-03-01"}).HasDates() {
		t.Error("expected both dates to be reported")
	}
}
