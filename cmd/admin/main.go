package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"roomrelay/backend/internal/config"
	"roomrelay/backend/internal/models"
	"roomrelay/backend/internal/reaper"
	"roomrelay/backend/internal/storage"

	"github.com/sirupsen/logrus"
)

const usage = `Usage: admin <command> [args]

Commands:
  reap                             run one reaper sweep
  list-rooms                       list rooms with member counts
  delete-room <code>               delete a room with its memberships and messages
  create-room <code> <hostToken>   create a room (development seeding)`

var errUsage = errors.New("invalid usage")

// commandArity is the number of arguments each command takes, its name included.
var commandArity = map[string]int{
	"reap":        1,
	"list-rooms":  1,
	"delete-room": 2,
	"create-room": 3,
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usage)
		} else {
			logrus.Error(err)
		}
		os.Exit(1)
	}
}

// run validates the arguments before touching the database so that usage
// errors never need a connection. The connection is closed on every return.
func run(args []string, out io.Writer) error {
	if err := checkArgs(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	db, err := storage.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	storageSvc := storage.NewStorageService(db.DB, nil) // No redis needed for admin CLI
	return execute(context.Background(), storageSvc, cfg.Reaper, args, out)
}

func checkArgs(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	want, ok := commandArity[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	if len(args) != want {
		return fmt.Errorf("%w: %s takes %d argument(s)", errUsage, args[0], want-1)
	}
	return nil
}

func execute(ctx context.Context, s storage.Storage, reaperCfg config.ReaperConfig, args []string, out io.Writer) error {
	switch args[0] {
	case "reap":
		res, err := reaper.New(s, reaperCfg).Sweep(ctx)
		if err != nil {
			return fmt.Errorf("error sweeping rooms: %w", err)
		}
		fmt.Fprintf(out, "Checked %d rooms: %d idle and %d stale deleted, %d failed.\n",
			res.Checked, len(res.Idle), len(res.Stale), res.Failed)
	case "list-rooms":
		if err := listRooms(ctx, s, out); err != nil {
			return fmt.Errorf("error listing rooms: %w", err)
		}
	case "delete-room":
		code := storage.NormalizeCode(args[1])
		err := s.DeleteRoomCascade(ctx, code)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("room %s does not exist", code)
		}
		if err != nil {
			return fmt.Errorf("error deleting room: %w", err)
		}
		fmt.Fprintf(out, "Room %s has been deleted.\n", code)
	case "create-room":
		code := storage.NormalizeCode(args[1])
		err := s.CreateRoom(ctx, &models.Room{Code: code, HostToken: args[2]})
		if errors.Is(err, storage.ErrDuplicate) {
			return fmt.Errorf("room %s already exists", code)
		}
		if err != nil {
			return fmt.Errorf("error creating room: %w", err)
		}
		fmt.Fprintf(out, "Room %s has been created.\n", code)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return nil
}

func listRooms(ctx context.Context, s storage.Storage, out io.Writer) error {
	rooms, err := s.ListRooms(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tMEMBERS\tLAST ACTIVITY")
	for _, r := range rooms {
		n, err := s.CountMemberships(ctx, r.Code)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", r.Code, n, r.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
