package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sahilchouksey/icm-reconcile/config"
	"github.com/sahilchouksey/icm-reconcile/database"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/expectation"
	"github.com/sahilchouksey/icm-reconcile/services/extraction"
	"github.com/sahilchouksey/icm-reconcile/services/reconcile"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
	"github.com/spf13/cobra"
)

const commandTimeout = 2 * time.Minute

type filterFlags struct {
	school      uint
	subject     uint
	testType    int
	subjectType string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().UintVar(&f.school, "school", 0, "only this school id")
	cmd.Flags().UintVar(&f.subject, "subject", 0, "only this subject id")
	cmd.Flags().IntVar(&f.testType, "test-type", 0, "only this test type (1 objectives, 2 essay, 3 practicals)")
	cmd.Flags().StringVar(&f.subjectType, "subject-type", "", "only CORE or ELECTIVE subjects")
}

func (f *filterFlags) build(cmd *cobra.Command) (expectation.Filters, error) {
	var out expectation.Filters
	if cmd.Flags().Changed("school") {
		v := f.school
		out.SchoolID = &v
	}
	if cmd.Flags().Changed("subject") {
		v := f.subject
		out.SubjectID = &v
	}
	if cmd.Flags().Changed("test-type") {
		v := sheetid.TestType(f.testType)
		out.TestType = &v
	}
	if f.subjectType != "" {
		v := model.SubjectType(strings.ToUpper(f.subjectType))
		out.SubjectType = &v
	}
	return out, out.Validate()
}

func parseExamID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid exam id %q", arg)
	}
	return uint(id), nil
}

func defaultPerSheet() int {
	if perSheet > 0 {
		return perSheet
	}
	env, err := config.Get()
	if err != nil {
		return expectation.DefaultCandidatesPerSheet
	}
	return env.ICM_CANDIDATES_PER_SHEET
}

func newExpectedCmd() *cobra.Command {
	var filters filterFlags
	cmd := &cobra.Command{
		Use:   "expected <exam_id>",
		Short: "List the sheets an exam should have",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			examID, err := parseExamID(args[0])
			if err != nil {
				return err
			}
			f, err := filters.build(cmd)
			if err != nil {
				return err
			}

			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			set, err := expectation.NewGenerator(db, defaultPerSheet()).Generate(ctx, examID, f)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), outputFormat, map[string]interface{}{
				"exam_id": examID,
				"total":   set.Len(),
				"sheets":  set.Tokens(),
			})
		},
	}
	filters.register(cmd)
	return cmd
}

func newCompareCmd() *cobra.Command {
	var filters filterFlags
	cmd := &cobra.Command{
		Use:   "compare <exam_id>",
		Short: "Compare expected sheets with uploaded documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			examID, err := parseExamID(args[0])
			if err != nil {
				return err
			}
			f, err := filters.build(cmd)
			if err != nil {
				return err
			}

			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			generator := expectation.NewGenerator(db, defaultPerSheet())
			cmp, err := reconcile.NewReconciler(db, generator).Compare(ctx, examID, f)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), outputFormat, cmp)
		},
	}
	filters.register(cmd)
	return cmd
}

func newOutstandingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outstanding",
		Short: "List documents whose extraction job is queued or processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			// read-only use: no service, file store or bus is needed
			jobs, err := extraction.NewManager(db, nil, nil, nil, extraction.Options{}).ListOutstanding(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), outputFormat, map[string]interface{}{
				"outstanding": len(jobs) > 0,
				"jobs":        jobs,
			})
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <token>...",
		Short: "Decode sheet id tokens",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make([]map[string]interface{}, 0, len(args))
			for _, token := range args {
				entry := map[string]interface{}{"input": token}
				id, err := sheetid.Decode(token)
				if err != nil {
					entry["error"] = err.Error()
				} else {
					entry["token"] = id.String()
					entry["sheet"] = id
					entry["test_type_name"] = id.TestType.String()
				}
				out = append(out, entry)
			}
			return render(cmd.OutOrStdout(), outputFormat, out)
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo exam if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := database.Migrate(db); err != nil {
				return err
			}
			if err := database.RunSeeds(db); err != nil {
				return err
			}
			var exam model.Exam
			if err := db.Where("name = ? AND year = ?", database.DemoExamName, database.DemoExamYear).First(&exam).Error; err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), outputFormat, map[string]interface{}{"exam_id": exam.ID})
		},
	}
}
