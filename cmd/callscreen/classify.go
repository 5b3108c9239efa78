package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chadiek/callscreen/internal/config"
	"github.com/chadiek/callscreen/internal/events"
	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
	"github.com/chadiek/callscreen/internal/triage"
)

func newClassifyCmd() *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "classify <number>",
		Short: "Classify a phone number",
		Long:  "Looks the number up in the spam cache and asks the classification service on a miss. Fresh results are stored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseNumber(args[0])
			if err != nil {
				return err
			}
			return runClassify(cmd, config.Load(), number, history)
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "also print up to N stored classifications")
	return cmd
}

func runClassify(cmd *cobra.Command, cfg config.Config, number phone.Number, history int) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cache, closeCache, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	bus := events.NewBus()
	defer bus.Close()
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	engine := triage.New(triage.Deps{
		Cache:      cache,
		Classifier: newClassifier(cfg),
		Bus:        bus,
	})
	defer engine.Close()

	rec := engine.Classify(ctx, "", number)

	ev := (<-ch).(events.Classified)
	switch {
	case ev.Fallback:
		printRecord(out, rec, "fallback")
	case ev.Cached:
		printRecord(out, rec, "cached")
	default:
		printRecord(out, rec, "fresh")
		if err := st.InsertClassification(ctx, &rec); err != nil {
			return err
		}
	}

	if history <= 0 {
		return nil
	}
	recs, err := st.ClassificationHistory(ctx, number, history)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "history (%d):\n", len(recs))
	for _, r := range recs {
		printRecord(out, r, r.ObservedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func printRecord(w io.Writer, rec models.ClassificationRecord, source string) {
	verdict := "not spam"
	if rec.IsSpam {
		verdict = "spam"
	}
	fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n", rec.PhoneNumber, verdict, rec.Confidence, source, rec.Reason)
}
