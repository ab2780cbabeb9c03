package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cybersafe-assessment-service/internal/auth"
	"cybersafe-assessment-service/internal/client"
	"cybersafe-assessment-service/internal/config"
	"cybersafe-assessment-service/internal/domain"
)

// NewTakeCmd runs the assessment controller against a server from the
// terminal. Mostly a development aid; the portal front end drives the same
// controller flow in production.
func NewTakeCmd(configPath *string) *cobra.Command {
	var serverURL, quizID, token, user string
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take a quiz interactively from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if quizID == "" {
				return fmt.Errorf("--quiz is required")
			}
			if token == "" {
				if user == "" {
					return fmt.Errorf("either --token or --user is required")
				}
				cfg, err := config.Load(*configPath)
				if err != nil {
					return err
				}
				secret := cfg.Auth.JWTSecret
				if secret == "" {
					secret = "dev-secret"
				}
				token, err = auth.NewVerifier(secret).Issue(user, 2*time.Hour)
				if err != nil {
					return err
				}
			}
			return runTake(cmd.Context(), serverURL, quizID, token)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "assessment server base URL")
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id to start")
	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the portal")
	cmd.Flags().StringVar(&user, "user", "", "user id to self-issue a token for (dev only)")
	return cmd
}

func runTake(ctx context.Context, serverURL, quizID, token string) error {
	reader := bufio.NewReader(os.Stdin)
	confirm := func(unanswered []string) bool {
		fmt.Printf("%d question(s) unanswered (%s). Submit anyway? [y/N] ", len(unanswered), strings.Join(unanswered, ", "))
		line, _ := reader.ReadString('\n')
		return strings.EqualFold(strings.TrimSpace(line), "y")
	}

	ctrl := client.NewController(client.NewHTTPClient(serverURL, token), client.WithConfirm(confirm))
	if err := ctrl.Begin(ctx, quizID); err != nil {
		return err
	}
	view := ctrl.View()
	fmt.Printf("%s — attempt %d, %d questions\n", view.Title, view.AttemptNumber, len(view.Questions))

	for ctrl.State() == client.StateActive {
		// The countdown only advances between prompts here; the server-side
		// deadline is what actually ends an overrunning attempt.
		if err := ctrl.Tick(ctx); err != nil {
			fmt.Printf("submit failed: %v (answers kept, retrying)\n", err)
			continue
		}
		if ctrl.State() != client.StateActive {
			break
		}
		if remaining, ok := ctrl.Remaining(); ok {
			fmt.Printf("[%s remaining]\n", remaining.Round(time.Second))
		}
		printQuestion(ctrl)

		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		if err := handleInput(ctx, ctrl, strings.TrimSpace(line)); err != nil {
			fmt.Println(err)
		}
	}

	if result := ctrl.Result(); result != nil {
		printResult(*result)
	}
	return nil
}

func printQuestion(ctrl *client.Controller) {
	q := ctrl.CurrentQuestion()
	fmt.Printf("\nQ%d. %s\n", ctrl.CurrentIndex()+1, q.Text)
	answer, answered := ctrl.AnswerFor(q.ID)
	for i, option := range q.Options {
		marker := " "
		if answered && answer.OptionIndex != nil && *answer.OptionIndex == i {
			marker = "*"
		}
		fmt.Printf("  %s %d) %s\n", marker, i+1, option)
	}
	if q.Type == domain.OpenEnded {
		if answered {
			fmt.Printf("  current answer: %s\n", answer.Text)
		}
		fmt.Println("  (type your answer, or :n/:p/:g N/:s)")
	} else {
		fmt.Println("  (pick an option number, or :n/:p/:g N/:s)")
	}
}

func handleInput(ctx context.Context, ctrl *client.Controller, input string) error {
	switch {
	case input == ":n":
		last, err := ctrl.Next()
		if err != nil {
			return err
		}
		if last {
			return ctrl.Submit(ctx)
		}
		return nil
	case input == ":p":
		return ctrl.Prev()
	case input == ":s":
		return ctrl.Submit(ctx)
	case strings.HasPrefix(input, ":g "):
		index, err := strconv.Atoi(strings.TrimPrefix(input, ":g "))
		if err != nil {
			return fmt.Errorf("usage: :g <question number>")
		}
		return ctrl.GoTo(index - 1)
	case input == "":
		return nil
	}
	if ctrl.CurrentQuestion().Type == domain.OpenEnded {
		return ctrl.SetText(input)
	}
	option, err := strconv.Atoi(input)
	if err != nil {
		return fmt.Errorf("enter an option number or a :command")
	}
	return ctrl.SelectOption(option - 1)
}

func printResult(result domain.GradeResult) {
	verdict := "FAILED"
	if result.Passed {
		verdict = "PASSED"
	}
	fmt.Printf("\n%s — %.2f%% (%d/%d points)\n", verdict, result.Score, result.EarnedPoints, result.TotalPoints)
	for _, qr := range result.Questions {
		mark := "✗"
		switch {
		case qr.Correct:
			mark = "✓"
		case qr.NeedsReview:
			mark = "?"
		}
		fmt.Printf("  %s %s (%d/%d)", mark, qr.QuestionID, qr.PointsAwarded, qr.PointsPossible)
		if qr.Explanation != "" {
			fmt.Printf(" — %s", qr.Explanation)
		}
		fmt.Println()
	}
	if result.NeedsReview {
		fmt.Println("Some answers are pending manual review.")
	}
	if result.CertificateEligible {
		fmt.Println("Certificate eligible: yes")
	}
}
