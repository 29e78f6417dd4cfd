package events

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dAudit/cmd/util"
	"github.com/ValentinKolb/dAudit/lib/events"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"os"
	"strings"
)

var (
	saveCmd = &cobra.Command{
		Use:   "save",
		Short: "Saves an event, or all events of a json or yaml file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file := viper.GetString("file"); file != "" {
				evs, err := readEvents(file)
				if err != nil {
					return err
				}
				results, err := client.SaveMany(cmd.Context(), evs)
				for _, r := range results {
					if r.Err != nil {
						fmt.Fprintf(os.Stderr, "failed to save event of item %s: %v\n", events.GroupKey(r.Event.ItemType, r.Event.ItemID), r.Err)
					}
				}
				if err != nil {
					return err
				}
				return util.Print(os.Stdout, evs)
			}

			ev, err := eventFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := client.Save(cmd.Context(), ev); err != nil {
				return err
			}
			return util.Print(os.Stdout, ev)
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [groupKey] [id]",
		Short: "Reads a single event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := client.ReadEvent(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return util.Print(os.Stdout, ev)
		},
	}
	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Returns a page of events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := timeRange()
			if err != nil {
				return err
			}
			profiles, err := profileIDs(viper.GetString("profiles"))
			if err != nil {
				return err
			}
			resp, err := client.QueryEvents(cmd.Context(), events.EventQuery{
				From:       from,
				To:         to,
				ItemType:   optionalInt(cmd, "item-type"),
				ItemID:     optionalInt(cmd, "item-id"),
				Subject:    viper.GetString("subject"),
				ProfileIDs: profiles,
				Offset:     viper.GetInt("offset"),
				PageSize:   viper.GetInt("page-size"),
			})
			if err != nil {
				return err
			}
			return util.Print(os.Stdout, resp)
		},
	}
	auditCmd = &cobra.Command{
		Use:   "audit [profileId]",
		Short: "Returns the audit report of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := cast.ToIntE(args[0])
			if err != nil {
				return fmt.Errorf("profileId must be a number: %w", err)
			}
			from, to, err := timeRange()
			if err != nil {
				return err
			}
			report, err := client.QueryProfileAudit(cmd.Context(), from, to, profileID, viper.GetString("subject"))
			if err != nil {
				return err
			}
			return util.Print(os.Stdout, report)
		},
	}
	loginsCmd = &cobra.Command{
		Use:   "logins",
		Short: "Returns the login report of all or the given profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := timeRange()
			if err != nil {
				return err
			}
			report, err := client.QueryLoginEvents(cmd.Context(), events.LoginQuery{
				From:       from,
				To:         to,
				EmployeeID: optionalInt(cmd, "employee"),
				ClientID:   optionalInt(cmd, "client"),
				Subject:    viper.GetString("subject"),
				AddedByID:  optionalInt(cmd, "added-by-id"),
			})
			if err != nil {
				return err
			}
			return util.Print(os.Stdout, report)
		},
	}
)

func init() {
	// save
	saveCmd.Flags().String("file", "", util.WrapString("Save all events of this json or yaml file (a list of events with the json field names, times in RFC 3339) concurrently"))
	saveCmd.Flags().Int("profile-id", 0, util.WrapString("Profile the event belongs to"))
	saveCmd.Flags().Int("item-id", 0, util.WrapString("Item the event is attached to, defaults to the profile"))
	saveCmd.Flags().Int("item-type", int(events.ItemTypeProfile), util.WrapString("Type of the item the event is attached to"))
	saveCmd.Flags().String("subject", "", util.WrapString("What happened (e.g. 'logged in')"))
	saveCmd.Flags().String("data", "", util.WrapString("Free form payload"))
	saveCmd.Flags().String("input", "", util.WrapString("Input channel (web, mobile)"))
	saveCmd.Flags().String("os", "", util.WrapString("Operating system of a mobile client (android, ios, windows, macos, linux)"))
	saveCmd.Flags().String("os-version", "", util.WrapString("Version of the operating system"))
	saveCmd.Flags().String("app-version", "", util.WrapString("Version of the mobile app"))
	saveCmd.Flags().String("added-by", "", util.WrapString("Name of the user that caused the event"))
	saveCmd.Flags().Int("added-by-id", 0, util.WrapString("Id of the user that caused the event"))
	saveCmd.Flags().String("created", "", util.WrapString("Creation time, defaults to now"))

	// query
	addRangeFlags(queryCmd)
	queryCmd.Flags().Int("item-type", 0, util.WrapString("Only events of this item type"))
	queryCmd.Flags().Int("item-id", 0, util.WrapString("Only events of this item"))
	queryCmd.Flags().String("subject", "", util.WrapString("Only events whose subject contains this text (case-insensitive)"))
	queryCmd.Flags().String("profiles", "", util.WrapString("Comma separated profile ids the page is restricted to"))
	queryCmd.Flags().Int("offset", 0, util.WrapString("Number of events to skip"))
	queryCmd.Flags().Int("page-size", events.DefaultPageSize, util.WrapString("Number of events per page"))

	// audit
	addRangeFlags(auditCmd)
	auditCmd.Flags().String("subject", "", util.WrapString("Only events whose subject contains this text (case-insensitive)"))

	// logins
	addRangeFlags(loginsCmd)
	loginsCmd.Flags().Int("employee", 0, util.WrapString("Only events of this employee profile"))
	loginsCmd.Flags().Int("client", 0, util.WrapString("Only events of this client profile"))
	loginsCmd.Flags().String("subject", "", util.WrapString("Replaces the login subjects (logged in, logged out, session expired)"))
	loginsCmd.Flags().Int("added-by-id", 0, util.WrapString("Only events caused by this user"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

var (
	inputTypes = map[string]events.InputType{
		"web":    events.InputWebPortal,
		"mobile": events.InputMobileApp,
	}
	operatingSystems = map[string]events.OS{
		"android": events.OSAndroid,
		"ios":     events.OSIOS,
		"windows": events.OSWindows,
		"macos":   events.OSMacOS,
		"linux":   events.OSLinux,
	}
)

// eventFromFlags builds the event described by the save flags
func eventFromFlags(cmd *cobra.Command) (*events.Event, error) {
	ev := &events.Event{
		ProfileID:  viper.GetInt("profile-id"),
		ItemID:     viper.GetInt("item-id"),
		ItemType:   events.ItemType(viper.GetInt("item-type")),
		Subject:    viper.GetString("subject"),
		Data:       viper.GetString("data"),
		OSVersion:  viper.GetString("os-version"),
		AppVersion: viper.GetString("app-version"),
		AddedBy:    viper.GetString("added-by"),
		AddedByID:  optionalInt(cmd, "added-by-id"),
	}
	if strings.TrimSpace(ev.Subject) == "" {
		return nil, fmt.Errorf("--subject is required")
	}
	if !util.IsExplicit(cmd, "item-id") && ev.ItemType == events.ItemTypeProfile {
		ev.ItemID = ev.ProfileID
	}

	if raw := viper.GetString("input"); raw != "" {
		t, ok := inputTypes[strings.ToLower(raw)]
		if !ok {
			return nil, fmt.Errorf("invalid input %s (expected one of: web, mobile)", raw)
		}
		ev.InputType = &t
	}
	if raw := viper.GetString("os"); raw != "" {
		o, ok := operatingSystems[strings.ToLower(raw)]
		if !ok {
			return nil, fmt.Errorf("invalid os %s (expected one of: android, ios, windows, macos, linux)", raw)
		}
		ev.OS = &o
	}

	created, err := optionalTime("created")
	if err != nil {
		return nil, err
	}
	if created != nil {
		ev.Created = *created
	}
	return ev, nil
}

// readEvents reads a list of events from a json or yaml file
func readEvents(path string) ([]*events.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// json is yaml, the documents go through json so the json field names apply to both
	var docs []map[string]any
	if err := yaml.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	encoded, err := json.Marshal(docs)
	if err != nil {
		return nil, err
	}
	var evs []*events.Event
	if err := json.Unmarshal(encoded, &evs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return evs, nil
}

// profileIDs parses a comma separated list of profile ids
func profileIDs(raw string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := cast.ToIntE(part)
		if err != nil {
			return nil, fmt.Errorf("invalid profile id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
