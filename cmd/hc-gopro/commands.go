package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/duncanleo/hc-gopro/config"
	"github.com/duncanleo/hc-gopro/control"
)

// runOnce performs a single camera operation and exits.
func runOnce(cfg config.Config, command string) error {
	ctrl, err := newController(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	switch command {
	case "photo":
		return ctrl.TakePicture(ctx)
	case "list":
		return listMedia(ctx, ctrl)
	case "fetch":
		path, err := ctrl.FetchLatest(ctx)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "delete-last":
		return ctrl.DeleteLast(ctx)
	case "delete-all":
		return ctrl.DeleteAll(ctx)
	case "power-on":
		return ctrl.PowerOn(ctx)
	case "power-off":
		return ctrl.PowerOff(ctx)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func listMedia(ctx context.Context, ctrl *control.Controller) error {
	list, err := ctrl.ListMedia(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DIRECTORY\tFILE\tTAKEN\tSIZE\tBURST\tURL")
	for e := range list.Entries() {
		burst := "-"
		if e.Burst != nil {
			burst = fmt.Sprintf("%d", e.Burst.Photos())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.Directory, e.File, e.Taken.Format(time.DateTime), e.Size, burst, e.URL)
	}
	return w.Flush()
}
