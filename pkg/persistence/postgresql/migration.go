package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE stages (
				id VARCHAR(255) PRIMARY KEY,
				community_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				position INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_stages_community_id ON stages(community_id);

			CREATE TABLE action_instances (
				id VARCHAR(255) PRIMARY KEY,
				community_id VARCHAR(255) NOT NULL,
				kind VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_action_instances_community_id ON action_instances(community_id);

			CREATE TABLE rules (
				id VARCHAR(255) PRIMARY KEY,
				community_id VARCHAR(255) NOT NULL,
				stage_id VARCHAR(255) NOT NULL,
				event VARCHAR(64) NOT NULL,
				action_instance_id VARCHAR(255) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_rules_community_id ON rules(community_id);
			CREATE INDEX idx_rules_stage_event ON rules(stage_id, event);
			CREATE INDEX idx_rules_event ON rules(event);

			CREATE TABLE pubs (
				id VARCHAR(255) PRIMARY KEY,
				community_id VARCHAR(255) NOT NULL,
				stage_id VARCHAR(255) NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_pubs_stage_id ON pubs(stage_id);
		`,
		2: `
			CREATE TABLE action_runs (
				id VARCHAR(255) PRIMARY KEY,
				attempt_group_id VARCHAR(255) NOT NULL,
				attempt INT NOT NULL,
				final BOOLEAN NOT NULL DEFAULT false,
				rule_id VARCHAR(255) NOT NULL DEFAULT '',
				action_instance_id VARCHAR(255) NOT NULL,
				action_kind VARCHAR(255) NOT NULL,
				community_id VARCHAR(255) NOT NULL,
				input JSONB NOT NULL DEFAULT '{}',
				config JSONB,
				status VARCHAR(32) NOT NULL CHECK (status IN ('succeeded', 'failed', 'timed-out')),
				reason VARCHAR(64) NOT NULL DEFAULT '',
				result JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_action_runs_rule_id ON action_runs(rule_id);
			CREATE INDEX idx_action_runs_action_instance_id ON action_runs(action_instance_id);
			CREATE INDEX idx_action_runs_attempt_group_id ON action_runs(attempt_group_id);
			CREATE INDEX idx_action_runs_started_at ON action_runs(started_at);
		`,
	}
}
