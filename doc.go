/*
Package callflow compiles and runs call-flow scripts: small line-oriented
programs describing an automated phone or chat dialogue.

# Script language

One instruction per line. Blank lines and lines starting with # are ignored,
and a token starting with # ends a line.

	Step <id>                   start a step; the first one is the entry point
	Speak "text" + $var ...     queue a message; unset variables show as [var]
	Listen <seconds>            wait for caller input (decimals allowed)
	Branch "keyword" <step>     jump if the input contains keyword
	Silence <step>              jump, unless the previous Branch missed once
	Default <step>              jump
	Exit                        end the conversation

Branch keywords form a single table for the whole script: a Branch in any
step matches keywords declared by any other step, in declaration order.

# Usage

	flow, diags, err := callflow.Compile(script)
	if err != nil {
		log.Fatal(err)
	}
	for _, d := range diags {
		log.Println(d)
	}

	sess := flow.NewSession()
	sess.SetIdentity("Ada")
	if err := sess.StartDispatch(ctx); err != nil {
		log.Fatal(err)
	}
	sess.SubmitInput("I have a question about my bill")
	for {
		msg, ok := sess.Poll()
		if !ok {
			break
		}
		fmt.Println(msg.Text)
	}

Each session runs on its own goroutine. Compiled flows are immutable and are
shared freely between sessions.
*/
package callflow
